package llm

import (
	"net/http"
	"strings"
	"time"
)

const URLOpenAI = "https://api.openai.com"

const (
	DefaultChatModel      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-large"
)

var nativeDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// NativeDimension returns the vector size a model produces without
// shortening, or 0 for an unknown model.
func NativeDimension(model string) int {
	return nativeDimensions[model]
}

// shortenable reports whether the model accepts the dimensions parameter.
func shortenable(model string) bool {
	return strings.HasPrefix(model, "text-embedding-3-")
}

type ClientOption func(*Client) error

func WithBaseURL(url string) ClientOption {
	return func(c *Client) error {
		if url == "" {
			return ErrInvalidBaseURL
		}
		c.baseURL = url
		return nil
	}
}

func WithAPIKey(key string) ClientOption {
	return func(c *Client) error {
		if key == "" {
			return ErrNoAPIKey
		}
		c.apiKey = key
		return nil
	}
}

// WithModel sets the chat model used when a request leaves Model empty.
func WithModel(model string) ClientOption {
	return func(c *Client) error {
		c.model = model
		return nil
	}
}

// WithEmbeddingModel sets the embedding model used when a request leaves
// Model empty.
func WithEmbeddingModel(model string) ClientOption {
	return func(c *Client) error {
		c.embeddingModel = model
		return nil
	}
}

// WithEmbeddingDimensions asks text-embedding-3 models for vectors shortened
// to n, so they fit an index column narrower than the model's native size.
// It is ignored for models that cannot shorten and when n is not smaller
// than the native size.
func WithEmbeddingDimensions(n int) ClientOption {
	return func(c *Client) error {
		c.embeddingDimensions = n
		return nil
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) error {
		if client == nil {
			c.httpClient = http.DefaultClient
			return nil
		}
		c.httpClient = client
		return nil
	}
}

// WithTimeout bounds every request. Zero disables the client-side deadline.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		c.timeout = timeout
		return nil
	}
}
