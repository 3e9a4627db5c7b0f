package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PauloHFS/guidebot/internal/ghost"
	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/metrics"
)

// Syncer refreshes a single post in storage and in the index, for CMS
// webhooks that report one post at a time.
type Syncer struct {
	source   PostSource
	storage  *Storage
	embedder Embedder
	index    DocumentStore
}

func NewSyncer(source PostSource, storage *Storage, embedder Embedder, index DocumentStore) *Syncer {
	return &Syncer{
		source:   source,
		storage:  storage,
		embedder: embedder,
		index:    index,
	}
}

// SyncPost fetches the post, stores it and re-embeds it. A post the CMS no
// longer serves is removed instead.
func (s *Syncer) SyncPost(ctx context.Context, slug string) error {
	post, err := s.source.GetPost(ctx, slug)
	if errors.Is(err, ghost.ErrPostNotFound) {
		logging.AddToEvent(ctx, slog.Bool("not_found", true))
		return s.RemovePost(ctx, slug)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch post %s: %w", slug, err)
	}

	file := postFile(post)
	if err := s.storage.SavePost(file); err != nil {
		return err
	}
	if err := s.storage.PutEntry(PostEntry{Slug: file.Slug, Title: file.Title, UpdatedAt: file.UpdatedAt}); err != nil {
		return err
	}

	if err := embedAndUpsert(ctx, s.embedder, s.index, &file); err != nil {
		metrics.DocumentsIngested.WithLabelValues("sync", "failed").Inc()
		return fmt.Errorf("failed to index post %s: %w", slug, err)
	}

	metrics.DocumentsIngested.WithLabelValues("sync", "embedded").Inc()
	return nil
}

// RemovePost deletes the post from the index and from storage.
func (s *Syncer) RemovePost(ctx context.Context, slug string) error {
	if err := s.index.Delete(ctx, slug); err != nil {
		return fmt.Errorf("failed to delete %s from index: %w", slug, err)
	}
	if err := s.storage.DeletePost(slug); err != nil {
		return err
	}
	if err := s.storage.RemoveEntry(slug); err != nil {
		return err
	}

	metrics.DocumentsIngested.WithLabelValues("sync", "removed").Inc()
	return nil
}
