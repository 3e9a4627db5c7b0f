package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sqlitevec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/PauloHFS/guidebot/internal/config"
)

func init() {
	sqlitevec.Auto()
}

var _ Index = (*SQLiteIndex)(nil)

// SQLiteIndex keeps documents in a plain SQLite table and ranks them with
// sqlite-vec's vec_distance_cosine. It suits single-node deployments and
// tests.
type SQLiteIndex struct {
	db     *sql.DB
	config Config
}

func OpenSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		dsn = "guidebot.db"
	}
	inMemory := strings.Contains(dsn, ":memory:")

	if !inMemory {
		if strings.Contains(dsn, "?") {
			dsn += "&_busy_timeout=5000"
		} else {
			dsn += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// A single connection serialises writers and keeps :memory: databases
	// from splitting per connection.
	db.SetMaxOpenConns(1)

	if !inMemory {
		if err := config.GetSQLiteConfig().ApplyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach sqlite: %w", err)
	}

	return db, nil
}

func NewSQLiteIndex(db *sql.DB, c Config) (*SQLiteIndex, error) {
	cfg, err := c.withDefaults()
	if err != nil {
		return nil, err
	}
	return &SQLiteIndex{db: db, config: cfg}, nil
}

func (s *SQLiteIndex) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slug TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			updated_at DATETIME,
			embedding BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`, s.config.TableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.config.TableName, err)
	}
	return nil
}

// Version reports the loaded sqlite-vec version.
func (s *SQLiteIndex) Version(ctx context.Context) (string, error) {
	var version string
	err := s.db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&version)
	return version, err
}

func (s *SQLiteIndex) Upsert(ctx context.Context, doc Document) error {
	if doc.Slug == "" {
		return ErrMissingSlug
	}
	if err := checkDimension(s.config.EmbeddingDimension, doc.Embedding); err != nil {
		return err
	}

	vectorBin, err := sqlitevec.SerializeFloat32(doc.Embedding)
	if err != nil {
		return fmt.Errorf("failed to serialize vector: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (slug, title, content, updated_at, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			updated_at = excluded.updated_at,
			embedding = excluded.embedding
	`, s.config.TableName)

	_, err = s.db.ExecContext(ctx, query,
		doc.Slug,
		doc.Title,
		doc.Content,
		timeParam(doc.UpdatedAt),
		vectorBin,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.Slug, err)
	}
	return nil
}

func (s *SQLiteIndex) Lookup(ctx context.Context, slug string) (*Document, error) {
	query := fmt.Sprintf(`
		SELECT slug, title, content, updated_at, vec_to_json(embedding)
		FROM %s WHERE slug = ?
	`, s.config.TableName)

	var (
		doc           Document
		updatedAt     sql.NullTime
		embeddingJSON string
	)
	err := s.db.QueryRowContext(ctx, query, slug).Scan(
		&doc.Slug,
		&doc.Title,
		&doc.Content,
		&updatedAt,
		&embeddingJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up document %s: %w", slug, err)
	}

	if err := json.Unmarshal([]byte(embeddingJSON), &doc.Embedding); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vector: %w", err)
	}
	doc.UpdatedAt = timeOrZero(updatedAt)

	return &doc, nil
}

func (s *SQLiteIndex) Search(ctx context.Context, queryVector []float32, k int) ([]SearchResult, error) {
	if err := checkDimension(s.config.EmbeddingDimension, queryVector); err != nil {
		return nil, err
	}

	queryBin, err := sqlitevec.SerializeFloat32(queryVector)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query vector: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT slug, title, content, updated_at,
		       vec_distance_cosine(embedding, ?) AS distance
		FROM %s
		ORDER BY distance, id
		LIMIT ?
	`, s.config.TableName)

	rows, err := s.db.QueryContext(ctx, query, queryBin, normalizeK(k))
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var (
			r         SearchResult
			updatedAt sql.NullTime
			distance  float64
		)
		if err := rows.Scan(&r.Slug, &r.Title, &r.Content, &updatedAt, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.UpdatedAt = timeOrZero(updatedAt)
		r.Similarity = 1 - distance
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return results, nil
}

func (s *SQLiteIndex) Delete(ctx context.Context, slug string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE slug = ?`, s.config.TableName)

	_, err := s.db.ExecContext(ctx, query, slug)
	return err
}

func (s *SQLiteIndex) Slugs(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT slug FROM %s ORDER BY id`, s.config.TableName)
	return querySlugs(ctx, s.db, query)
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.config.TableName)

	var count int
	err := s.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}
