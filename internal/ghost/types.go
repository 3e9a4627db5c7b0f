package ghost

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrPostNotFound = errors.New("post not found")
	ErrMissingKey   = errors.New("ghost content api key is required")
)

// Post is a Ghost post as returned by the content API.
type Post struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	HTML      string    `json:"html"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostSummary is one entry of the post list.
type PostSummary struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Pagination struct {
	Page  int  `json:"page"`
	Limit any  `json:"limit"`
	Pages int  `json:"pages"`
	Total int  `json:"total"`
	Next  *int `json:"next"`
	Prev  *int `json:"prev"`
}

// ProviderError is an entry of the "errors" array Ghost returns instead of
// posts, sometimes with a 200 status.
type ProviderError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Context    string `json:"context"`
	Type       string `json:"type"`
}

func (e *ProviderError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("ghost api error (%s, status %d): %s: %s", e.Type, e.StatusCode, e.Message, e.Context)
	}
	return fmt.Sprintf("ghost api error (%s, status %d): %s", e.Type, e.StatusCode, e.Message)
}

// Retryable reports whether backing off could change the outcome.
func (e *ProviderError) Retryable() bool {
	switch e.Type {
	case "NotFoundError", "UnauthorizedError", "NoPermissionError", "ValidationError", "BadRequestError":
		return false
	}
	return e.StatusCode < 400 || e.StatusCode == 429 || e.StatusCode >= 500
}

// DecodeError reports a body that is neither a post payload nor an error
// envelope.
type DecodeError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed ghost response (status %d): %s: %v", e.StatusCode, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed ghost response (status %d): %s", e.StatusCode, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type envelope struct {
	Posts  []Post          `json:"posts"`
	Meta   *meta           `json:"meta"`
	Errors []ProviderError `json:"errors"`
}

type meta struct {
	Pagination Pagination `json:"pagination"`
}

// page is the validated form of an envelope: either posts or a provider error.
type page struct {
	posts      []Post
	pagination Pagination
}

// validate turns a decoded envelope into a page or a typed error.
func (e *envelope) validate(statusCode int) (*page, error) {
	if len(e.Errors) > 0 {
		perr := e.Errors[0]
		perr.StatusCode = statusCode
		if perr.Message == "" {
			perr.Message = "unknown error"
		}
		return nil, &perr
	}

	if statusCode < 200 || statusCode >= 300 {
		return nil, &ProviderError{StatusCode: statusCode, Type: "HTTPError", Message: "unexpected status"}
	}

	if e.Posts == nil {
		return nil, &DecodeError{StatusCode: statusCode, Reason: "response has neither posts nor errors"}
	}

	p := &page{posts: e.Posts, pagination: Pagination{Page: 1, Pages: 1}}
	if e.Meta != nil {
		p.pagination = e.Meta.Pagination
		if p.pagination.Pages < 1 {
			p.pagination.Pages = 1
		}
	}
	return p, nil
}

// IsRetryable is the backoff predicate for Ghost requests: transport failures
// and transient provider errors are retried, missing posts and malformed
// bodies are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrPostNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return false
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable()
	}

	return true
}
