package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/PauloHFS/guidebot/internal/ghost"
	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/metrics"
	"github.com/PauloHFS/guidebot/internal/worker"
)

type PostSource interface {
	ListPosts(ctx context.Context) ([]ghost.PostSummary, error)
	GetPost(ctx context.Context, slug string) (*ghost.Post, error)
}

type FetchReport struct {
	Listed int
	Saved  int
	Failed int
}

// FetchJob copies every CMS post into Storage as plain text.
type FetchJob struct {
	source  PostSource
	storage *Storage
	pool    *worker.Pool
}

func NewFetchJob(source PostSource, storage *Storage, pool *worker.Pool) *FetchJob {
	return &FetchJob{source: source, storage: storage, pool: pool}
}

// Run lists the posts, writes the index, then fetches the bodies through the
// pool. Failed posts are reported and joined into the returned error.
func (j *FetchJob) Run(ctx context.Context) (FetchReport, error) {
	logger := logging.Get()

	summaries, err := j.source.ListPosts(ctx)
	if err != nil {
		return FetchReport{}, fmt.Errorf("failed to list posts: %w", err)
	}

	entries := make([]PostEntry, len(summaries))
	for i, s := range summaries {
		entries[i] = PostEntry{Slug: s.Slug, Title: s.Title, UpdatedAt: s.UpdatedAt}
	}
	if err := j.storage.SaveIndex(entries); err != nil {
		return FetchReport{Listed: len(entries)}, err
	}

	logger.InfoContext(ctx, "fetching posts", slog.Int("count", len(entries)))

	var saved, failed atomic.Int64
	runErr := j.pool.Run(ctx, len(entries), func(ctx context.Context, i int) error {
		slug := entries[i].Slug
		if err := j.fetchOne(ctx, slug); err != nil {
			failed.Add(1)
			metrics.DocumentsIngested.WithLabelValues("fetch", "failed").Inc()
			logger.ErrorContext(ctx, "post fetch failed",
				slog.String("slug", slug),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("%s: %w", slug, err)
		}
		saved.Add(1)
		metrics.DocumentsIngested.WithLabelValues("fetch", "saved").Inc()
		return nil
	})

	report := FetchReport{
		Listed: len(entries),
		Saved:  int(saved.Load()),
		Failed: int(failed.Load()),
	}
	logger.InfoContext(ctx, "fetch finished",
		slog.Int("listed", report.Listed),
		slog.Int("saved", report.Saved),
		slog.Int("failed", report.Failed),
	)

	return report, runErr
}

func (j *FetchJob) fetchOne(ctx context.Context, slug string) error {
	post, err := j.source.GetPost(ctx, slug)
	if err != nil {
		return err
	}

	return j.storage.SavePost(postFile(post))
}

func postFile(post *ghost.Post) PostFile {
	return PostFile{
		Slug:      post.Slug,
		Title:     post.Title,
		Content:   ghost.HTMLToText(post.HTML),
		UpdatedAt: post.UpdatedAt,
	}
}
