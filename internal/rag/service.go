package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/PauloHFS/guidebot/internal/config"
	"github.com/PauloHFS/guidebot/internal/llm"
	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/metrics"
	"github.com/PauloHFS/guidebot/internal/vector"
	"github.com/PauloHFS/guidebot/internal/worker"
)

var ErrEmptyQuestion = errors.New("question is required")

var tracer = otel.Tracer("guidebot/rag")

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]vector.SearchResult, error)
}

type Completer interface {
	Generate(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

type Answer struct {
	Text    string
	Sources []vector.SearchResult
}

type Options struct {
	SystemPrompt string
	Model        string
	Temperature  float64
	TopK         int
	NoContext    string
	Fallback     string

	SearchTimeout     time.Duration
	CompletionTimeout time.Duration

	// CompletionRetry retries transient completion failures. Nil disables it.
	CompletionRetry *worker.Policy
}

func DefaultOptions() Options {
	return Options{
		SystemPrompt: DefaultSystemPrompt,
		Model:        llm.DefaultChatModel,
		Temperature:  0.3,
		TopK:         vector.DefaultTopK,
		NoContext:    DefaultNoContext,
		Fallback:     DefaultFallback,
	}
}

// WithPolicy overlays the non-zero fields of a prompt policy file.
func (o Options) WithPolicy(p *config.PromptPolicy) Options {
	if p == nil {
		return o
	}
	if p.SystemPrompt != "" {
		o.SystemPrompt = strings.TrimSpace(p.SystemPrompt)
	}
	if p.Model != "" {
		o.Model = p.Model
	}
	if p.Temperature != nil {
		o.Temperature = *p.Temperature
	}
	if p.TopK > 0 {
		o.TopK = p.TopK
	}
	if p.NoContext != "" {
		o.NoContext = p.NoContext
	}
	if p.Fallback != "" {
		o.Fallback = p.Fallback
	}
	return o
}

type Service struct {
	embedder  Embedder
	index     Searcher
	completer Completer
	opts      Options
}

func NewService(embedder Embedder, index Searcher, completer Completer, opts Options) *Service {
	defaults := DefaultOptions()
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaults.SystemPrompt
	}
	if opts.Model == "" {
		opts.Model = defaults.Model
	}
	if opts.TopK <= 0 {
		opts.TopK = defaults.TopK
	}
	if opts.NoContext == "" {
		opts.NoContext = defaults.NoContext
	}
	if opts.Fallback == "" {
		opts.Fallback = defaults.Fallback
	}
	if opts.CompletionRetry != nil && opts.CompletionRetry.Retryable == nil {
		p := *opts.CompletionRetry
		p.Retryable = llm.IsRetryableError
		if p.Name == "" {
			p.Name = "completion"
		}
		opts.CompletionRetry = &p
	}

	return &Service{
		embedder:  embedder,
		index:     index,
		completer: completer,
		opts:      opts,
	}
}

// Answer embeds the question, retrieves the nearest documents and asks the
// chat model to answer from them. Sources are returned in retrieval order.
func (s *Service) Answer(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	ctx, span := tracer.Start(ctx, "rag.answer")
	defer span.End()

	start := time.Now()
	answer, err := s.answer(ctx, question)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.AnswersTotal.WithLabelValues(status).Inc()
	logging.AddToEvent(ctx,
		slog.String("answer_status", status),
		slog.Int64("answer_ms", time.Since(start).Milliseconds()),
	)

	return answer, err
}

func (s *Service) answer(ctx context.Context, question string) (*Answer, error) {
	logger := logging.Get()

	queryVector, err := step(ctx, "embed", func(ctx context.Context) ([]float32, error) {
		return s.embedder.Embed(ctx, question)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	results, err := step(ctx, "search", func(ctx context.Context) ([]vector.SearchResult, error) {
		ctx, cancel := withTimeout(ctx, s.opts.SearchTimeout)
		defer cancel()
		return s.index.Search(ctx, queryVector, s.opts.TopK)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	metrics.RetrievedDocuments.Observe(float64(len(results)))
	logger.InfoContext(ctx, "documents retrieved",
		slog.Int("count", len(results)),
		slog.Any("slugs", slugs(results)),
	)
	logging.AddToEvent(ctx, slog.Int("retrieved_documents", len(results)))

	grounding := BuildContext(results)
	if grounding == "" {
		grounding = s.opts.NoContext
	}

	temperature := s.opts.Temperature
	req := llm.CompletionRequest{
		Model: s.opts.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: s.opts.SystemPrompt},
			{Role: llm.RoleUser, Content: buildUserMessage(grounding, question)},
		},
		Temperature: &temperature,
	}

	resp, err := step(ctx, "complete", func(ctx context.Context) (*llm.CompletionResponse, error) {
		return s.complete(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	text := strings.TrimSpace(resp.FirstContent())
	if text == "" {
		logger.WarnContext(ctx, "completion returned no content, using fallback")
		text = s.opts.Fallback
	}

	if results == nil {
		results = []vector.SearchResult{}
	}

	return &Answer{Text: text, Sources: results}, nil
}

func (s *Service) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	once := func(ctx context.Context) (*llm.CompletionResponse, error) {
		ctx, cancel := withTimeout(ctx, s.opts.CompletionTimeout)
		defer cancel()
		return s.completer.Generate(ctx, req)
	}

	if s.opts.CompletionRetry == nil {
		return once(ctx)
	}
	return worker.Retry(ctx, *s.opts.CompletionRetry, once)
}

// step runs one pipeline stage inside its own span and records its duration.
func step[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "rag."+name, trace.WithAttributes(attribute.String("rag.step", name)))
	defer span.End()

	start := time.Now()
	out, err := fn(ctx)
	metrics.AnswerDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.Get().ErrorContext(ctx, "answer step failed",
			slog.String("step", name),
			slog.String("error", err.Error()),
		)
	}
	return out, err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func slugs(results []vector.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Slug
	}
	return out
}
