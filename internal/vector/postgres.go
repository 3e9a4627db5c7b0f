package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

var _ Index = (*PostgresIndex)(nil)

// PostgresIndex keeps documents in a pgvector table and ranks them with the
// <=> cosine distance operator.
type PostgresIndex struct {
	db     *sql.DB
	config Config
}

func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	return db, nil
}

func NewPostgresIndex(db *sql.DB, c Config) (*PostgresIndex, error) {
	cfg, err := c.withDefaults()
	if err != nil {
		return nil, err
	}
	return &PostgresIndex{db: db, config: cfg}, nil
}

func (p *PostgresIndex) EnsureSchema(ctx context.Context) error {
	dim := ""
	if p.config.EmbeddingDimension > 0 {
		dim = fmt.Sprintf("(%d)", p.config.EmbeddingDimension)
	}

	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			updated_at TIMESTAMPTZ,
			embedding vector%s NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`, p.config.TableName, dim)

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create %s: %w", p.config.TableName, err)
	}
	return nil
}

func (p *PostgresIndex) Upsert(ctx context.Context, doc Document) error {
	if doc.Slug == "" {
		return ErrMissingSlug
	}
	if err := checkDimension(p.config.EmbeddingDimension, doc.Embedding); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (slug, title, content, updated_at, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at,
			embedding = EXCLUDED.embedding
	`, p.config.TableName)

	_, err := p.db.ExecContext(ctx, query,
		doc.Slug,
		doc.Title,
		doc.Content,
		timeParam(doc.UpdatedAt),
		pgvector.NewVector(doc.Embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.Slug, err)
	}
	return nil
}

func (p *PostgresIndex) Lookup(ctx context.Context, slug string) (*Document, error) {
	query := fmt.Sprintf(`
		SELECT slug, title, content, updated_at, embedding
		FROM %s WHERE slug = $1
	`, p.config.TableName)

	var (
		doc       Document
		updatedAt sql.NullTime
		embedding pgvector.Vector
	)
	err := p.db.QueryRowContext(ctx, query, slug).Scan(
		&doc.Slug,
		&doc.Title,
		&doc.Content,
		&updatedAt,
		&embedding,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up document %s: %w", slug, err)
	}

	doc.UpdatedAt = timeOrZero(updatedAt)
	doc.Embedding = embedding.Slice()
	return &doc, nil
}

func (p *PostgresIndex) Search(ctx context.Context, queryVector []float32, k int) ([]SearchResult, error) {
	if err := checkDimension(p.config.EmbeddingDimension, queryVector); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT slug, title, content, updated_at,
		       1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1, id
		LIMIT $2
	`, p.config.TableName)

	rows, err := p.db.QueryContext(ctx, query, pgvector.NewVector(queryVector), normalizeK(k))
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var (
			r         SearchResult
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&r.Slug, &r.Title, &r.Content, &updatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.UpdatedAt = timeOrZero(updatedAt)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return results, nil
}

func (p *PostgresIndex) Delete(ctx context.Context, slug string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE slug = $1`, p.config.TableName)

	_, err := p.db.ExecContext(ctx, query, slug)
	return err
}

func (p *PostgresIndex) Slugs(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT slug FROM %s ORDER BY id`, p.config.TableName)
	return querySlugs(ctx, p.db, query)
}

func (p *PostgresIndex) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.config.TableName)

	var count int
	err := p.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

func querySlugs(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list slugs: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan slug: %w", err)
		}
		slugs = append(slugs, s)
	}
	return slugs, rows.Err()
}
