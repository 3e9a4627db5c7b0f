package vector

import (
	"context"
	"strings"

	"github.com/PauloHFS/guidebot/internal/llm"
	"github.com/PauloHFS/guidebot/internal/worker"
)

type Embedder struct {
	llmClient llm.LLMClient
	model     string
	dimension int
	policy    *worker.Policy
}

type EmbedderOption func(*Embedder)

// WithRetry retries transient provider failures with exponential backoff.
func WithRetry(p worker.Policy) EmbedderOption {
	return func(e *Embedder) {
		if p.Retryable == nil {
			p.Retryable = llm.IsRetryableError
		}
		if p.Name == "" {
			p.Name = "embed"
		}
		e.policy = &p
	}
}

// WithDimension makes Embed reject vectors of any other length.
func WithDimension(n int) EmbedderOption {
	return func(e *Embedder) {
		e.dimension = n
	}
}

func NewEmbedder(llmClient llm.LLMClient, model string, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		llmClient: llmClient,
		model:     model,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	if e.policy == nil {
		return e.embedOnce(ctx, text)
	}

	return worker.Retry(ctx, *e.policy, func(ctx context.Context) ([]float32, error) {
		return e.embedOnce(ctx, text)
	})
}

func (e *Embedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.llmClient.Embed(ctx, llm.EmbeddingRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, ErrNoEmbedding
	}

	v := resp.Data[0].Embedding
	if err := checkDimension(e.dimension, v); err != nil {
		return nil, err
	}

	return v, nil
}
