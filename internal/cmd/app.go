package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/PauloHFS/guidebot/internal/config"
	"github.com/PauloHFS/guidebot/internal/ghost"
	"github.com/PauloHFS/guidebot/internal/httpclient"
	"github.com/PauloHFS/guidebot/internal/llm"
	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/rag"
	"github.com/PauloHFS/guidebot/internal/vector"
	"github.com/PauloHFS/guidebot/internal/web"
	"github.com/PauloHFS/guidebot/internal/worker"
)

// newAnswerer builds the question answering pipeline. Tests replace it.
var newAnswerer = buildAnswerer

func buildAnswerer(ctx context.Context, cfg *config.Config) (web.Answerer, func(), error) {
	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	svc, err := p.answerer(cfg)
	if err != nil {
		p.Close()
		return nil, nil, err
	}
	return svc, p.Close, nil
}

// pipeline holds the clients shared by the answer, embed and sync paths.
type pipeline struct {
	llm      *llm.MetricsMiddleware
	embedder *vector.Embedder
	index    vector.Index
	db       *sql.DB
}

func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	client, err := newLLMClient(cfg)
	if err != nil {
		return nil, err
	}

	index, db, err := openIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &pipeline{
		llm:      client,
		embedder: newEmbedder(cfg, client),
		index:    index,
		db:       db,
	}, nil
}

func (p *pipeline) Close() {
	if err := p.db.Close(); err != nil {
		logging.Get().Warn("failed to close database", "error", err)
	}
}

func (p *pipeline) answerer(cfg *config.Config) (*rag.Service, error) {
	policy, err := config.LoadPromptPolicy(cfg.PromptFile)
	if err != nil {
		return nil, err
	}

	opts := rag.DefaultOptions()
	opts.Model = cfg.ChatModel
	opts.SearchTimeout = cfg.SearchTimeout
	opts.CompletionTimeout = cfg.CompletionTimeout
	opts = opts.WithPolicy(policy)
	completionRetry := retryPolicy(cfg, "completion")
	opts.CompletionRetry = &completionRetry

	return rag.NewService(p.embedder, p.index, p.llm, opts), nil
}

func newGhostClient(cfg *config.Config) (*ghost.Client, error) {
	hc := httpclient.New(httpclient.Config{
		Name:    "ghost",
		Timeout: 30 * time.Second,
	})
	return ghost.NewClient(cfg.GhostBaseURL, cfg.GhostAPIKey,
		ghost.WithHTTPClient(hc.Client),
		ghost.WithRetryPolicy(ghostRetryPolicy(cfg)),
		ghost.WithPageSize(cfg.GhostPageSize),
	)
}

func newLLMClient(cfg *config.Config) (*llm.MetricsMiddleware, error) {
	hc := httpclient.New(httpclient.Config{
		Name:    "openai",
		Timeout: cfg.RequestTimeout,
	})

	client, err := llm.NewClient(
		llm.WithBaseURL(cfg.OpenAIBaseURL),
		llm.WithAPIKey(cfg.OpenAIAPIKey),
		llm.WithModel(cfg.ChatModel),
		llm.WithEmbeddingModel(cfg.EmbeddingModel),
		llm.WithEmbeddingDimensions(cfg.EmbeddingDimension),
		llm.WithHTTPClient(hc.Client),
		llm.WithTimeout(cfg.CompletionTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return client.WithMetrics(), nil
}

func newEmbedder(cfg *config.Config, client llm.LLMClient) *vector.Embedder {
	return vector.NewEmbedder(client, cfg.EmbeddingModel,
		vector.WithRetry(retryPolicy(cfg, "embed")),
		vector.WithDimension(cfg.EmbeddingDimension),
	)
}

// openIndex connects to the vector store and creates its schema if needed.
func openIndex(ctx context.Context, cfg *config.Config) (vector.Index, *sql.DB, error) {
	index, db, err := vector.Open(ctx, vector.Config{
		Backend:            cfg.VectorBackend,
		DSN:                cfg.DatabaseURL,
		EmbeddingDimension: cfg.EmbeddingDimension,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s index: %w", cfg.VectorBackend, err)
	}

	if err := index.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return index, db, nil
}

func retryPolicy(cfg *config.Config, name string) worker.Policy {
	return worker.Policy{
		MaxRetries: cfg.RetryMaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.RetryMaxDelay,
		Name:       name,
	}
}

// ghostRetryPolicy keeps the CMS's longer schedule under the shared cap.
func ghostRetryPolicy(cfg *config.Config) worker.Policy {
	p := retryPolicy(cfg, "ghost")
	p.MaxRetries = cfg.GhostRetryMax
	p.BaseDelay = cfg.GhostRetryBaseDelay
	return p
}

// newPool sizes an ingestion pool from the task defaults and the configured
// concurrency and rate.
func newPool(cfg *config.Config, task string) (*worker.Pool, error) {
	rc := worker.RateConfigFor(task)
	rc.Concurrency = cfg.IngestConcurrency
	if cfg.IngestRate > 0 {
		rc.Rate = rate.Limit(cfg.IngestRate)
		rc.Burst = max(1, int(cfg.IngestRate))
	}
	return worker.NewPool(task, rc, worker.WithLogger(logging.Get()))
}
