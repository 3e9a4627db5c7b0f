package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PauloHFS/guidebot/internal/ghost"
)

func TestStorage_IndexEntries(t *testing.T) {
	s := NewStorage(t.TempDir())

	require.NoError(t, s.PutEntry(PostEntry{Slug: "a", Title: "A"}))
	require.NoError(t, s.PutEntry(PostEntry{Slug: "b", Title: "B"}))
	require.NoError(t, s.PutEntry(PostEntry{Slug: "a", Title: "A2"}))

	entries, err := s.LoadIndex()
	require.NoError(t, err)
	assert.Equal(t, []PostEntry{{Slug: "a", Title: "A2"}, {Slug: "b", Title: "B"}}, entries)

	require.NoError(t, s.RemoveEntry("a"))
	require.NoError(t, s.RemoveEntry("missing"))

	entries, err = s.LoadIndex()
	require.NoError(t, err)
	assert.Equal(t, []PostEntry{{Slug: "b", Title: "B"}}, entries)
}

func TestStorage_DeletePost(t *testing.T) {
	s := NewStorage(t.TempDir())
	require.NoError(t, s.SavePost(PostFile{Slug: "a", Title: "A"}))

	require.NoError(t, s.DeletePost("a"))
	_, err := s.LoadPost("a")
	assert.ErrorIs(t, err, ErrPostFileMissing)

	assert.NoError(t, s.DeletePost("a"))
	assert.ErrorIs(t, s.DeletePost("../x"), ErrInvalidSlug)
}

func TestSyncer(t *testing.T) {
	ctx := context.Background()
	updated := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	source := &fakeSource{posts: map[string]*ghost.Post{
		"refund": {Slug: "refund", Title: "환불 정책", HTML: "<p>7일 이내 환불</p>", UpdatedAt: updated},
	}}
	storage := NewStorage(t.TempDir())
	embedder := &countingEmbedder{}
	index := newTestIndex(t)
	syncer := NewSyncer(source, storage, embedder, index)

	t.Run("SyncPost", func(t *testing.T) {
		require.NoError(t, syncer.SyncPost(ctx, "refund"))

		doc, err := index.Lookup(ctx, "refund")
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, "7일 이내 환불", doc.Content)
		assert.True(t, updated.Equal(doc.UpdatedAt))

		entries, err := storage.LoadIndex()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "refund", entries[0].Slug)
		assert.Equal(t, []string{"7일 이내 환불"}, embedder.texts)
	})

	t.Run("NotFoundRemoves", func(t *testing.T) {
		delete(source.posts, "refund")
		require.NoError(t, syncer.SyncPost(ctx, "refund"))

		doc, err := index.Lookup(ctx, "refund")
		require.NoError(t, err)
		assert.Nil(t, doc)

		entries, err := storage.LoadIndex()
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("EmbedFailure", func(t *testing.T) {
		source.posts["faq"] = &ghost.Post{Slug: "faq", Title: "FAQ", HTML: "<p>질문</p>"}
		failing := NewSyncer(source, storage, &countingEmbedder{err: errors.New("rate limited")}, index)

		err := failing.SyncPost(ctx, "faq")
		assert.ErrorContains(t, err, "rate limited")

		doc, lerr := index.Lookup(ctx, "faq")
		require.NoError(t, lerr)
		assert.Nil(t, doc)
	})
}
