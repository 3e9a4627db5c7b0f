package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const indexFile = "index.json"

var (
	ErrInvalidSlug     = errors.New("invalid slug")
	ErrPostFileMissing = errors.New("post file missing")
)

// PostEntry is one line of index.json.
type PostEntry struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostFile is the flattened post stored as <slug>.json.
type PostFile struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Storage keeps fetched posts as pretty-printed JSON files under one
// directory, between the fetch and embed jobs.
type Storage struct {
	dir string
	// mu serializes read-modify-write cycles on index.json.
	mu sync.Mutex
}

func NewStorage(dir string) *Storage {
	return &Storage{dir: dir}
}

func (s *Storage) Dir() string {
	return s.dir
}

func (s *Storage) SaveIndex(entries []PostEntry) error {
	if entries == nil {
		entries = []PostEntry{}
	}
	return saveJSON(filepath.Join(s.dir, indexFile), entries)
}

func (s *Storage) LoadIndex() ([]PostEntry, error) {
	var entries []PostEntry
	if err := loadJSON(filepath.Join(s.dir, indexFile), &entries); err != nil {
		return nil, fmt.Errorf("failed to load post index: %w", err)
	}
	return entries, nil
}

// PutEntry inserts or replaces the index entry with the same slug. A missing
// index.json is created.
func (s *Storage) PutEntry(entry PostEntry) error {
	return s.updateIndex(func(entries []PostEntry) []PostEntry {
		i := slices.IndexFunc(entries, func(e PostEntry) bool { return e.Slug == entry.Slug })
		if i >= 0 {
			entries[i] = entry
			return entries
		}
		return append(entries, entry)
	})
}

// RemoveEntry drops the index entry with the slug, if any.
func (s *Storage) RemoveEntry(slug string) error {
	return s.updateIndex(func(entries []PostEntry) []PostEntry {
		return slices.DeleteFunc(entries, func(e PostEntry) bool { return e.Slug == slug })
	})
}

func (s *Storage) updateIndex(fn func([]PostEntry) []PostEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []PostEntry
	err := loadJSON(filepath.Join(s.dir, indexFile), &entries)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load post index: %w", err)
	}
	return s.SaveIndex(fn(entries))
}

func (s *Storage) SavePost(p PostFile) error {
	path, err := s.postPath(p.Slug)
	if err != nil {
		return err
	}
	return saveJSON(path, p)
}

func (s *Storage) LoadPost(slug string) (*PostFile, error) {
	path, err := s.postPath(slug)
	if err != nil {
		return nil, err
	}

	var p PostFile
	if err := loadJSON(path, &p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPostFileMissing, path)
		}
		return nil, fmt.Errorf("failed to load post %s: %w", slug, err)
	}
	return &p, nil
}

// DeletePost removes <slug>.json. A missing file is not an error.
func (s *Storage) DeletePost(slug string) error {
	path, err := s.postPath(slug)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete post %s: %w", slug, err)
	}
	return nil
}

func (s *Storage) postPath(slug string) (string, error) {
	if slug == "" || slug == "index" || strings.ContainsAny(slug, `/\`) || strings.Contains(slug, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	}
	return filepath.Join(s.dir, slug+".json"), nil
}

// saveJSON writes v through a temp file and a rename, creating parent
// directories as needed.
func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return os.Rename(tmp.Name(), path)
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid json in %s: %w", path, err)
	}
	return nil
}
