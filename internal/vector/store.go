package vector

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"
)

// Index stores documents with their embeddings and answers nearest-neighbour
// queries by cosine distance.
type Index interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, doc Document) error
	// Lookup returns nil, nil when no document has the slug.
	Lookup(ctx context.Context, slug string) (*Document, error)
	// Search returns at most k documents ordered by descending similarity.
	// An empty index yields an empty slice.
	Search(ctx context.Context, query []float32, k int) ([]SearchResult, error)
	Delete(ctx context.Context, slug string) error
	Slugs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (c Config) withDefaults() (Config, error) {
	if c.TableName == "" {
		c.TableName = DefaultTableName
	}
	if !tableNamePattern.MatchString(c.TableName) {
		return c, fmt.Errorf("invalid table name %q", c.TableName)
	}
	return c, nil
}

// Open connects to the configured backend and returns its index together
// with the pool, which the caller closes.
func Open(ctx context.Context, cfg Config) (Index, *sql.DB, error) {
	switch cfg.Backend {
	case BackendPostgres, "":
		db, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		idx, err := NewPostgresIndex(db, cfg)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return idx, db, nil
	case BackendSQLite:
		db, err := OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		idx, err := NewSQLiteIndex(db, cfg)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return idx, db, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func normalizeK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	return k
}

func timeOrZero(n sql.NullTime) time.Time {
	if n.Valid {
		return n.Time.UTC()
	}
	return time.Time{}
}

func timeParam(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
