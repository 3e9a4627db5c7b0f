package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/metrics"
	"github.com/PauloHFS/guidebot/internal/vector"
	"github.com/PauloHFS/guidebot/internal/worker"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DocumentStore is the part of vector.Index the embed job writes to.
type DocumentStore interface {
	Upsert(ctx context.Context, doc vector.Document) error
	Lookup(ctx context.Context, slug string) (*vector.Document, error)
	Slugs(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, slug string) error
}

type EmbedReport struct {
	Total    int
	Embedded int
	Skipped  int
	Missing  int
	Failed   int
	Pruned   int
}

type EmbedOptions struct {
	// Force re-embeds documents whose UpdatedAt is unchanged.
	Force bool
	// Prune deletes indexed documents no longer listed in storage.
	Prune bool
}

// EmbedJob embeds every stored post and upserts it into the index.
type EmbedJob struct {
	storage  *Storage
	embedder Embedder
	index    DocumentStore
	pool     *worker.Pool
	opts     EmbedOptions
}

func NewEmbedJob(storage *Storage, embedder Embedder, index DocumentStore, pool *worker.Pool, opts EmbedOptions) *EmbedJob {
	return &EmbedJob{
		storage:  storage,
		embedder: embedder,
		index:    index,
		pool:     pool,
		opts:     opts,
	}
}

type outcome string

const (
	outcomeEmbedded outcome = "embedded"
	outcomeSkipped  outcome = "skipped"
	outcomeMissing  outcome = "missing"
)

func (j *EmbedJob) Run(ctx context.Context) (EmbedReport, error) {
	logger := logging.Get()

	entries, err := j.storage.LoadIndex()
	if err != nil {
		return EmbedReport{}, err
	}

	logger.InfoContext(ctx, "embedding posts", slog.Int("count", len(entries)))

	var embedded, skipped, missing, failed atomic.Int64
	runErr := j.pool.Run(ctx, len(entries), func(ctx context.Context, i int) error {
		slug := entries[i].Slug

		out, err := j.embedOne(ctx, slug)
		if err != nil {
			failed.Add(1)
			metrics.DocumentsIngested.WithLabelValues("embed", "failed").Inc()
			logger.ErrorContext(ctx, "post embedding failed",
				slog.String("slug", slug),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("%s: %w", slug, err)
		}

		switch out {
		case outcomeEmbedded:
			embedded.Add(1)
		case outcomeSkipped:
			skipped.Add(1)
		case outcomeMissing:
			missing.Add(1)
		}
		metrics.DocumentsIngested.WithLabelValues("embed", string(out)).Inc()
		return nil
	})

	report := EmbedReport{
		Total:    len(entries),
		Embedded: int(embedded.Load()),
		Skipped:  int(skipped.Load()),
		Missing:  int(missing.Load()),
		Failed:   int(failed.Load()),
	}

	if j.opts.Prune && runErr == nil {
		pruned, err := j.prune(ctx, entries)
		report.Pruned = pruned
		if err != nil {
			runErr = err
		}
	}

	logger.InfoContext(ctx, "embedding finished",
		slog.Int("total", report.Total),
		slog.Int("embedded", report.Embedded),
		slog.Int("skipped", report.Skipped),
		slog.Int("missing", report.Missing),
		slog.Int("failed", report.Failed),
		slog.Int("pruned", report.Pruned),
	)

	return report, runErr
}

func (j *EmbedJob) embedOne(ctx context.Context, slug string) (outcome, error) {
	post, err := j.storage.LoadPost(slug)
	if errors.Is(err, ErrPostFileMissing) {
		logging.Get().WarnContext(ctx, "post file not found, skipping", slog.String("slug", slug))
		return outcomeMissing, nil
	}
	if err != nil {
		return "", err
	}

	if !j.opts.Force {
		existing, err := j.index.Lookup(ctx, post.Slug)
		if err != nil {
			return "", err
		}
		if unchanged(existing, post) {
			return outcomeSkipped, nil
		}
	}

	if err := embedAndUpsert(ctx, j.embedder, j.index, post); err != nil {
		return "", err
	}
	return outcomeEmbedded, nil
}

// embedAndUpsert embeds the post content, or its title when the body is
// empty, and replaces the indexed copy.
func embedAndUpsert(ctx context.Context, embedder Embedder, index DocumentStore, post *PostFile) error {
	text := post.Content
	if strings.TrimSpace(text) == "" {
		text = post.Title
	}

	embedding, err := embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed: %w", err)
	}

	return index.Upsert(ctx, vector.Document{
		Slug:      post.Slug,
		Title:     post.Title,
		Content:   post.Content,
		UpdatedAt: post.UpdatedAt,
		Embedding: embedding,
	})
}

// unchanged reports whether the indexed copy already reflects this content
// version. A post without a timestamp is always re-embedded.
func unchanged(existing *vector.Document, post *PostFile) bool {
	if existing == nil || post.UpdatedAt.IsZero() {
		return false
	}
	return existing.UpdatedAt.Equal(post.UpdatedAt) && existing.Title == post.Title
}

func (j *EmbedJob) prune(ctx context.Context, entries []PostEntry) (int, error) {
	keep := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		keep[e.Slug] = struct{}{}
	}

	indexed, err := j.index.Slugs(ctx)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, slug := range indexed {
		if _, ok := keep[slug]; ok {
			continue
		}
		if err := j.index.Delete(ctx, slug); err != nil {
			return pruned, fmt.Errorf("failed to prune %s: %w", slug, err)
		}
		pruned++
		metrics.DocumentsIngested.WithLabelValues("embed", "pruned").Inc()
	}
	return pruned, nil
}
