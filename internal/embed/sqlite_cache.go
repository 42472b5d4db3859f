// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteCache persists embeddings across runs in a SQLite file.
type SQLiteCache struct {
	cached
	db *sql.DB
}

// OpenSQLiteCache opens or creates the cache database at path and wraps next.
func OpenSQLiteCache(path, model string, next Provider) (*SQLiteCache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening embedding cache: %w", err)
	}

	s := &SQLiteCache{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating embedding cache schema: %w", err)
	}
	s.cached = cached{store: sqliteStore{db: db, model: model}, model: model, next: next}
	return s, nil
}

// Close releases the database connection.
func (s *SQLiteCache) Close() error {
	return s.db.Close()
}

// Len returns the number of cached vectors.
func (s *SQLiteCache) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM embeddings`).Scan(&n)
	return n, err
}

func (s *SQLiteCache) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS embeddings (
			key TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			dim INTEGER NOT NULL,
			vector BLOB NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

type sqliteStore struct {
	db    *sql.DB
	model string
}

func (s sqliteStore) get(ctx context.Context, key string) ([]float32, bool) {
	var dim int
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT dim, vector FROM embeddings WHERE key = ?`, key,
	).Scan(&dim, &blob)
	if err != nil || len(blob) != dim*4 {
		return nil, false
	}
	return decodeVector(blob), true
}

func (s sqliteStore) put(ctx context.Context, key string, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embeddings (key, model, dim, vector, created_at) VALUES (?, ?, ?, ?, ?)`,
		key, s.model, len(vec), encodeVector(vec), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
