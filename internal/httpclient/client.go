package httpclient

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/PauloHFS/guidebot/internal/contextkeys"
	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/metrics"
)

// redactedParams are query parameters whose values never reach the logs.
// Ghost passes its content key as ?key=.
var redactedParams = []string{"key", "api_key", "token"}

// quotaHeaders are provider rate-limit headers worth keeping in the log.
var quotaHeaders = map[string]string{
	"X-Ratelimit-Remaining-Requests": "ratelimit_remaining_requests",
	"X-Ratelimit-Remaining-Tokens":   "ratelimit_remaining_tokens",
	"Retry-After":                    "retry_after",
}

type Client struct {
	*http.Client
	name string
}

type Config struct {
	// Name labels the logs and metrics of this client, e.g. "ghost".
	Name    string
	Timeout time.Duration
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// New builds a client whose requests are traced, counted and logged as one
// wide event per round trip. Retrying is left to the caller.
func New(cfg Config) *Client {
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &Client{
		Client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &loggingTransport{
				RoundTripper: otelhttp.NewTransport(base),
				name:         cfg.Name,
			},
		},
		name: cfg.Name,
	}
}

func (c *Client) Name() string {
	return c.name
}

type loggingTransport struct {
	http.RoundTripper
	name string
}

// RoundTrip forwards the inbound request id, so a provider call can be
// matched to the /ask request or sync job that caused it.
func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()

	ctx, event := logging.NewEventContext(r.Context())
	event.Add(
		slog.String("http_client", t.name),
		slog.String("method", r.Method),
		slog.String("url", redactURL(r.URL)),
	)

	if id := contextkeys.RequestID(ctx); id != "" {
		event.Add(slog.String("request_id", id))
		r = r.Clone(ctx)
		r.Header.Set("X-Request-ID", id)
	} else {
		r = r.WithContext(ctx)
	}

	resp, err := t.RoundTripper.RoundTrip(r)
	elapsed := time.Since(start)
	event.Add(slog.Float64("duration_ms", float64(elapsed.Nanoseconds())/1e6))

	if err != nil {
		metrics.OutboundRequests.WithLabelValues(t.name, "error").Inc()
		event.Add(
			slog.String("outcome", "error"),
			slog.String("error", err.Error()),
		)
		logging.Get().Log(ctx, slog.LevelError, "http request failed", event.Attrs()...)
		return nil, err
	}

	metrics.OutboundRequests.WithLabelValues(t.name, statusClass(resp.StatusCode)).Inc()
	event.Add(slog.Int("status", resp.StatusCode))
	for header, attr := range quotaHeaders {
		if v := resp.Header.Get(header); v != "" {
			event.Add(slog.String(attr, v))
		}
	}

	level := slog.LevelInfo
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}

	logging.Get().Log(ctx, level, "http request completed", event.Attrs()...)
	return resp, nil
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

func redactURL(u *url.URL) string {
	q := u.Query()
	changed := false
	for _, p := range redactedParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return u.String()
	}

	clone := *u
	clone.RawQuery = q.Encode()
	return clone.String()
}
