// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	_ "modernc.org/sqlite"
)

// SQLiteHybrid blends an FTS5 bm25 lexical score with cosine similarity.
// Each Rank call builds a private in-memory index, so concurrent runs share
// nothing.
type SQLiteHybrid struct {
	Weights Weights
}

// NewSQLiteHybrid returns the in-process hybrid backend.
func NewSQLiteHybrid(w Weights) *SQLiteHybrid {
	return &SQLiteHybrid{Weights: w}
}

// Name returns "sqlite-hybrid".
func (s *SQLiteHybrid) Name() string { return "sqlite-hybrid" }

// Probe checks that the SQLite build has FTS5.
func (s *SQLiteHybrid) Probe(ctx context.Context) error {
	db, err := openIndex(ctx)
	if err != nil {
		return err
	}
	return db.Close()
}

// Rank indexes docs and scores them against q.
func (s *SQLiteHybrid) Rank(ctx context.Context, q Query, docs []Document) ([]Scored, error) {
	db, err := openIndex(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := insertDocs(ctx, db, docs); err != nil {
		return nil, err
	}
	lexical, err := bm25Scores(ctx, db, q.Text)
	if err != nil {
		return nil, err
	}
	lexical = maxScale(lexical)

	out := make([]Scored, len(docs))
	for i, d := range docs {
		out[i] = Scored{ID: d.ID, Score: s.Weights.blend(lexical[d.ID], vectorScore(q.Embedding, d.Embedding))}
	}
	return out, nil
}

func openIndex(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("%w: opening index: %w", ErrBackendUnavailable, err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx,
		`CREATE VIRTUAL TABLE docs USING fts5(id UNINDEXED, body, tokenize='porter unicode61')`,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating FTS5 table: %w", ErrBackendUnavailable, err)
	}
	return db, nil
}

func insertDocs(ctx context.Context, db *sql.DB, docs []Document) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO docs (id, body) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx, d.ID, d.Text); err != nil {
			return fmt.Errorf("indexing %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// bm25Scores returns the negated bm25 rank of every matching document, so
// larger is better. Documents without a matching term are absent.
func bm25Scores(ctx context.Context, db *sql.DB, text string) (map[string]float64, error) {
	scores := make(map[string]float64)
	match := ftsQuery(text)
	if match == "" {
		return scores, nil
	}

	rows, err := db.QueryContext(ctx, `SELECT id, bm25(docs) FROM docs WHERE docs MATCH ?`, match)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		scores[id] = -rank
	}
	return scores, rows.Err()
}

// ftsQuery turns free text into an FTS5 OR query of quoted terms, which
// keeps user punctuation from being parsed as query syntax.
func ftsQuery(text string) string {
	terms := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(terms))
	var quoted []string
	for _, t := range terms {
		if seen[t] {
			continue
		}
		seen[t] = true
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}
