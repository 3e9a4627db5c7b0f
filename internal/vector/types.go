package vector

import (
	"errors"
	"fmt"
	"time"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"

	DefaultTopK      = 3
	DefaultTableName = "guide_documents"
)

type Config struct {
	Backend            string
	DSN                string
	EmbeddingDimension int
	TableName          string
}

// Document is one CMS post flattened to plain text, with its embedding.
type Document struct {
	Slug      string
	Title     string
	Content   string
	UpdatedAt time.Time
	Embedding []float32
}

type SearchResult struct {
	Slug       string    `json:"slug"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	UpdatedAt  time.Time `json:"updated_at"`
	Similarity float64   `json:"similarity"`
}

var (
	ErrNoEmbedding    = &EmbeddingError{Message: "no embedding returned"}
	ErrEmptyText      = &EmbeddingError{Message: "text to embed is empty"}
	ErrMissingSlug    = errors.New("document slug is required")
	ErrUnknownBackend = errors.New("unknown vector backend")

	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

type EmbeddingError struct {
	Message string
}

func (e *EmbeddingError) Error() string {
	return e.Message
}

type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

func (e *DimensionError) Unwrap() error {
	return ErrDimensionMismatch
}

func checkDimension(want int, v []float32) error {
	if len(v) == 0 {
		return ErrNoEmbedding
	}
	if want > 0 && len(v) != want {
		return &DimensionError{Want: want, Got: len(v)}
	}
	return nil
}
