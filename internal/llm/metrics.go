package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/metrics"
)

const (
	opEmbed    = "embed"
	opComplete = "complete"
)

// MetricsMiddleware wraps an LLMClient, recording call latency, failures by
// class and billed tokens. Token usage is also added to the wide event of
// the request being served, so an /ask log line carries its own cost.
type MetricsMiddleware struct {
	client LLMClient
}

var _ LLMClient = (*MetricsMiddleware)(nil)

func NewMetricsMiddleware(client LLMClient) *MetricsMiddleware {
	return &MetricsMiddleware{client: client}
}

func (c *Client) WithMetrics() *MetricsMiddleware {
	return NewMetricsMiddleware(c)
}

func (m *MetricsMiddleware) Generate(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return observe(ctx, opComplete, req.Model, func() (*CompletionResponse, Usage, error) {
		resp, err := m.client.Generate(ctx, req)
		if err != nil || resp == nil {
			return resp, Usage{}, err
		}
		return resp, resp.Usage, nil
	})
}

func (m *MetricsMiddleware) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	return observe(ctx, opEmbed, req.Model, func() (*EmbeddingResponse, Usage, error) {
		resp, err := m.client.Embed(ctx, req)
		if err != nil || resp == nil {
			return resp, Usage{}, err
		}
		return resp, resp.Usage, nil
	})
}

func observe[T any](ctx context.Context, op, model string, call func() (T, Usage, error)) (T, error) {
	if model == "" {
		model = "default"
	}

	start := time.Now()
	resp, usage, err := call()
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		metrics.ProviderErrors.WithLabelValues(op, model, classifyError(err)).Inc()
	}
	metrics.ProviderDuration.WithLabelValues(op, model, status).Observe(elapsed.Seconds())

	if err == nil {
		recordTokens(op, model, usage)
		logging.AddToEvent(ctx,
			slog.Int(op+"_prompt_tokens", usage.PromptTokens),
			slog.Int(op+"_total_tokens", usage.TotalTokens),
			slog.Duration(op+"_duration", elapsed),
		)
	}

	return resp, err
}

func recordTokens(op, model string, usage Usage) {
	for kind, n := range map[string]int{
		"prompt":     usage.PromptTokens,
		"completion": usage.CompletionTokens,
	} {
		if n > 0 {
			metrics.ProviderTokens.WithLabelValues(op, model, kind).Add(float64(n))
		}
	}
}

// classifyError buckets provider failures for the error counter.
func classifyError(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsAuthError(err):
		return "auth"
	case IsRateLimitError(err):
		return "rate_limit"
	case IsTimeoutError(err), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case IsDecodeError(err):
		return "decode"
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode >= 500:
			return "server_error"
		case apiErr.StatusCode >= 400:
			return "client_error"
		}
	}
	return "unknown"
}
