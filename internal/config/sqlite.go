package config

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

type SQLiteConfig struct {
	CacheSizeKB int    // negative = KiB, positive = pages
	TempStore   string // "MEMORY" or "FILE"
	WALMode     bool
	SyncLevel   string // "OFF", "NORMAL", "FULL", "EXTRA"
}

func GetSQLiteConfig() SQLiteConfig {
	cfg := SQLiteConfig{
		CacheSizeKB: -8000,
		TempStore:   "MEMORY",
		WALMode:     true,
		SyncLevel:   "NORMAL",
	}

	if v, ok := os.LookupEnv("SQLITE_CACHE_SIZE"); ok {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.CacheSizeKB = i
		}
	}

	if v, ok := os.LookupEnv("SQLITE_TEMP_STORE"); ok {
		v = strings.ToUpper(v)
		if v == "MEMORY" || v == "FILE" {
			cfg.TempStore = v
		}
	}

	if v, ok := os.LookupEnv("SQLITE_WAL_MODE"); ok {
		cfg.WALMode = strings.ToLower(v) == "true" || v == "1"
	}

	if v, ok := os.LookupEnv("SQLITE_SYNC_LEVEL"); ok {
		v = strings.ToUpper(v)
		if v == "OFF" || v == "NORMAL" || v == "FULL" || v == "EXTRA" {
			cfg.SyncLevel = v
		}
	}

	if _, ok := os.LookupEnv("SQLITE_CACHE_SIZE"); !ok {
		if ramMB := detectRAM(); ramMB > 0 {
			cfg.CacheSizeKB = calculateCacheSize(ramMB)
		}
	}

	return cfg
}

// calculateCacheSize gives the page cache 1% of RAM, between 4 and 128 MiB.
func calculateCacheSize(ramMB int) int {
	cacheMB := int(math.Floor(float64(ramMB) * 0.01))
	cacheMB = max(cacheMB, 4)
	cacheMB = min(cacheMB, 128)
	return -cacheMB * 1024
}

func detectRAM() int {
	if v, ok := os.LookupEnv("SYSTEM_RAM_MB"); ok {
		if mb, err := strconv.Atoi(v); err == nil && mb > 0 {
			return mb
		}
	}

	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	return parseMemTotal(string(data))
}

func parseMemTotal(meminfo string) int {
	for line := range strings.SplitSeq(meminfo, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "MemTotal:" {
			continue
		}
		if kb, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
			return int(kb / 1024)
		}
	}
	return 0
}

type pragma struct {
	name  string
	value string
}

func (c SQLiteConfig) pragmas() []pragma {
	pragmas := []pragma{
		{"temp_store", c.TempStore},
		{"cache_size", strconv.Itoa(c.CacheSizeKB)},
	}
	if c.WALMode {
		pragmas = append(pragmas,
			pragma{"journal_mode", "WAL"},
			pragma{"wal_autocheckpoint", "1000"},
		)
	}
	return append(pragmas,
		pragma{"synchronous", c.SyncLevel},
		pragma{"busy_timeout", "5000"},
	)
}

// ApplyPragmas tunes a file-backed index database. The pool must hold a
// single connection, since pragmas are per connection.
func (c SQLiteConfig) ApplyPragmas(ctx context.Context, db *sql.DB) error {
	for _, p := range c.pragmas() {
		stmt := fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to set PRAGMA %s: %w", p.name, err)
		}
	}

	return nil
}
