package vector

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPostgresTestIndex creates a throwaway table in the database named by
// DATABASE_URL. The test is skipped when no Postgres URL is set.
func newPostgresTestIndex(t *testing.T, dim int) *PostgresIndex {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		t.Skip("DATABASE_URL does not point at postgres")
	}

	ctx := context.Background()
	db, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)

	table := "guide_documents_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	idx, err := NewPostgresIndex(db, Config{TableName: table, EmbeddingDimension: dim})
	require.NoError(t, err)
	require.NoError(t, idx.EnsureSchema(ctx))

	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table))
		db.Close()
	})
	return idx
}

func TestPostgresIndex_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyIndex", func(t *testing.T) {
		idx := newPostgresTestIndex(t, 3)

		results, err := idx.Search(ctx, []float32{1, 0, 0}, 3)
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	})

	t.Run("ExactMatchFirst", func(t *testing.T) {
		idx := newPostgresTestIndex(t, 3)

		require.NoError(t, idx.Upsert(ctx, Document{Slug: "refund", Title: "환불 정책", Content: "환불은 7일 이내", Embedding: []float32{1, 0, 0}}))
		require.NoError(t, idx.Upsert(ctx, Document{Slug: "billing", Title: "결제", Content: "결제 수단", Embedding: []float32{0.6, 0.8, 0}}))
		require.NoError(t, idx.Upsert(ctx, Document{Slug: "account", Title: "계정", Content: "계정 설정", Embedding: []float32{0, 0, 1}}))

		results, err := idx.Search(ctx, []float32{1, 0, 0}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, "refund", results[0].Slug)
		assert.Equal(t, "환불은 7일 이내", results[0].Content)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
		assert.Equal(t, "billing", results[1].Slug)
		assert.InDelta(t, 0.6, results[1].Similarity, 1e-5)
		assert.Equal(t, "account", results[2].Slug)
	})

	t.Run("BoundedByK", func(t *testing.T) {
		idx := newPostgresTestIndex(t, 2)
		for _, slug := range []string{"a", "b", "c", "d", "e"} {
			require.NoError(t, idx.Upsert(ctx, Document{Slug: slug, Title: slug, Embedding: []float32{1, 1}}))
		}

		results, err := idx.Search(ctx, []float32{1, 1}, 2)
		require.NoError(t, err)
		assert.Len(t, results, 2)

		results, err = idx.Search(ctx, []float32{1, 1}, 0)
		require.NoError(t, err)
		assert.Len(t, results, DefaultTopK)
	})

	t.Run("TiesKeepInsertionOrder", func(t *testing.T) {
		idx := newPostgresTestIndex(t, 2)
		for _, slug := range []string{"first", "second", "third"} {
			require.NoError(t, idx.Upsert(ctx, Document{Slug: slug, Title: slug, Embedding: []float32{0, 1}}))
		}

		results, err := idx.Search(ctx, []float32{0, 1}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, []string{"first", "second", "third"}, []string{results[0].Slug, results[1].Slug, results[2].Slug})
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		idx := newPostgresTestIndex(t, 3)

		_, err := idx.Search(ctx, []float32{1, 0}, 3)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestPostgresIndex_Upsert(t *testing.T) {
	ctx := context.Background()

	t.Run("ReplacesBySlug", func(t *testing.T) {
		idx := newPostgresTestIndex(t, 2)
		updated := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

		require.NoError(t, idx.Upsert(ctx, Document{Slug: "refund", Title: "old", Content: "old", Embedding: []float32{1, 0}}))
		require.NoError(t, idx.Upsert(ctx, Document{Slug: "refund", Title: "환불 정책", Content: "new", UpdatedAt: updated, Embedding: []float32{0, 1}}))

		count, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		doc, err := idx.Lookup(ctx, "refund")
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, "환불 정책", doc.Title)
		assert.Equal(t, "new", doc.Content)
		assert.True(t, updated.Equal(doc.UpdatedAt))
		assert.Equal(t, []float32{0, 1}, doc.Embedding)
	})

	t.Run("RequiresSlugAndEmbedding", func(t *testing.T) {
		idx := newPostgresTestIndex(t, 2)

		assert.ErrorIs(t, idx.Upsert(ctx, Document{Embedding: []float32{1, 0}}), ErrMissingSlug)
		assert.ErrorIs(t, idx.Upsert(ctx, Document{Slug: "x"}), ErrNoEmbedding)
	})

	t.Run("LookupMissing", func(t *testing.T) {
		idx := newPostgresTestIndex(t, 2)

		doc, err := idx.Lookup(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("DeleteAndSlugs", func(t *testing.T) {
		idx := newPostgresTestIndex(t, 2)
		for _, slug := range []string{"a", "b", "c"} {
			require.NoError(t, idx.Upsert(ctx, Document{Slug: slug, Title: slug, Embedding: []float32{1, 0}}))
		}

		require.NoError(t, idx.Delete(ctx, "b"))

		slugs, err := idx.Slugs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, slugs)
	})
}
