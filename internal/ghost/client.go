package ghost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/worker"
)

const (
	apiPath = "/ghost/api/v3/content"

	// maxBodySize bounds a single content API response.
	maxBodySize = 32 << 20
)

// DefaultPolicy retries a CMS call five times, starting at two seconds.
var DefaultPolicy = worker.Policy{
	MaxRetries: 5,
	BaseDelay:  2 * time.Second,
	MaxDelay:   10 * time.Second,
	Retryable:  IsRetryable,
	Name:       "ghost",
}

// Client reads posts from the Ghost content API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     worker.Policy
	sleep      worker.Sleeper
	pageSize   int
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

func WithRetryPolicy(p worker.Policy) Option {
	return func(cl *Client) {
		if p.Retryable == nil {
			p.Retryable = IsRetryable
		}
		if p.Name == "" {
			p.Name = "ghost"
		}
		cl.policy = p
	}
}

// WithSleeper replaces the backoff wait, for tests.
func WithSleeper(s worker.Sleeper) Option {
	return func(cl *Client) {
		cl.sleep = s
	}
}

// WithPageSize sets the list page size. Zero keeps Ghost's default.
func WithPageSize(n int) Option {
	return func(cl *Client) {
		cl.pageSize = n
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingKey
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid ghost base url %q: %w", baseURL, err)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     DefaultPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListPosts walks every page of the post list.
func (c *Client) ListPosts(ctx context.Context) ([]PostSummary, error) {
	first, err := c.listPage(ctx, 1)
	if err != nil {
		return nil, err
	}

	posts := summarize(nil, first.posts)
	total := first.pagination.Pages

	for n := 2; n <= total; n++ {
		p, err := c.listPage(ctx, n)
		if err != nil {
			return nil, err
		}
		posts = summarize(posts, p.posts)
	}

	logging.Get().InfoContext(ctx, "ghost posts listed",
		slog.Int("posts", len(posts)),
		slog.Int("pages", total),
	)
	return posts, nil
}

// GetPost fetches one post with its HTML body. A missing slug yields
// ErrPostNotFound without retrying.
func (c *Client) GetPost(ctx context.Context, slug string) (*Post, error) {
	if slug == "" {
		return nil, fmt.Errorf("%w: empty slug", ErrPostNotFound)
	}

	u := c.endpoint("/posts/slug/"+url.PathEscape(slug)+"/", nil)

	p, err := worker.RetryWithSleeper(ctx, c.policy, c.sleep, func(ctx context.Context) (*page, error) {
		p, err := c.get(ctx, u)
		if err != nil {
			return nil, notFound(slug, err)
		}
		if len(p.posts) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrPostNotFound, slug)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	return &p.posts[0], nil
}

func (c *Client) listPage(ctx context.Context, n int) (*page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(n))
	q.Set("fields", "slug,title,updated_at")
	if c.pageSize > 0 {
		q.Set("limit", strconv.Itoa(c.pageSize))
	}
	u := c.endpoint("/posts/", q)

	p, err := worker.RetryWithSleeper(ctx, c.policy, c.sleep, func(ctx context.Context) (*page, error) {
		return c.get(ctx, u)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list posts (page %d): %w", n, err)
	}
	return p, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("key", c.apiKey)
	return c.baseURL + apiPath + path + "?" + q.Encode()
}

// get performs one request and validates the envelope.
func (c *Client) get(ctx context.Context, u string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ghost request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read ghost response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &ProviderError{StatusCode: resp.StatusCode, Type: "HTTPError", Message: http.StatusText(resp.StatusCode)}
		}
		return nil, &DecodeError{StatusCode: resp.StatusCode, Reason: "invalid json", Err: err}
	}

	return env.validate(resp.StatusCode)
}

func summarize(dst []PostSummary, posts []Post) []PostSummary {
	for _, p := range posts {
		dst = append(dst, PostSummary{Slug: p.Slug, Title: p.Title, UpdatedAt: p.UpdatedAt})
	}
	return dst
}

func notFound(slug string, err error) error {
	if perr, ok := err.(*ProviderError); ok && (perr.Type == "NotFoundError" || perr.StatusCode == http.StatusNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrPostNotFound, slug, err)
	}
	return err
}
