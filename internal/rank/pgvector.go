// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// PgvectorHybrid blends PostgreSQL full-text rank (ts_rank_cd) with pgvector
// cosine distance. Documents are loaded into a transaction-scoped temporary
// table, so nothing persists between runs.
type PgvectorHybrid struct {
	Weights Weights
	pool    *pgxpool.Pool
}

// NewPgvectorHybrid configures a connection pool for dsn. It does not
// connect; reachability is checked by Probe on every run.
func NewPgvectorHybrid(ctx context.Context, dsn string, w Weights) (*PgvectorHybrid, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing pgvector dsn: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 0
	config.MaxConnIdleTime = 5 * time.Minute
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating pgvector pool: %w", err)
	}
	return &PgvectorHybrid{Weights: w, pool: pool}, nil
}

// Name returns "pgvector".
func (p *PgvectorHybrid) Name() string { return "pgvector" }

// Close releases the pool.
func (p *PgvectorHybrid) Close() error {
	p.pool.Close()
	return nil
}

// Probe pings the database and checks that the vector extension is installed.
func (p *PgvectorHybrid) Probe(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: pgvector ping: %w", ErrBackendUnavailable, err)
	}
	var version string
	err := p.pool.QueryRow(ctx, `SELECT extversion FROM pg_extension WHERE extname = 'vector'`).Scan(&version)
	if err != nil {
		return fmt.Errorf("%w: vector extension: %w", ErrBackendUnavailable, err)
	}
	return nil
}

const pgvectorRankSQL = `
SELECT id,
       ts_rank_cd(to_tsvector('english', body), plainto_tsquery('english', $1)) AS lexical,
       1 - (embedding <=> $2) AS similarity
FROM rank_docs`

// Rank loads docs into a temporary table and scores them in one query.
func (p *PgvectorHybrid) Rank(ctx context.Context, q Query, docs []Document) ([]Scored, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: pgvector begin: %w", ErrBackendUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`CREATE TEMP TABLE rank_docs (id text PRIMARY KEY, body text, embedding vector) ON COMMIT DROP`,
	); err != nil {
		return nil, fmt.Errorf("creating temp table: %w", err)
	}

	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		if len(d.Embedding) == 0 {
			continue
		}
		rows = append(rows, []any{d.ID, d.Text, pgvector.NewVector(d.Embedding)})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"rank_docs"},
		[]string{"id", "body", "embedding"}, pgx.CopyFromRows(rows)); err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}

	result, err := tx.Query(ctx, pgvectorRankSQL, q.Text, pgvector.NewVector(q.Embedding))
	if err != nil {
		return nil, fmt.Errorf("ranking query: %w", err)
	}
	lexical := make(map[string]float64, len(rows))
	vector := make(map[string]float64, len(rows))
	for result.Next() {
		var id string
		var lex, sim float64
		if err := result.Scan(&id, &lex, &sim); err != nil {
			result.Close()
			return nil, fmt.Errorf("scanning rank row: %w", err)
		}
		lexical[id] = lex
		vector[id] = clamp01((sim + 1) / 2)
	}
	result.Close()
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading rank rows: %w", err)
	}
	lexical = maxScale(lexical)

	out := make([]Scored, 0, len(vector))
	for _, d := range docs {
		if v, ok := vector[d.ID]; ok {
			out = append(out, Scored{ID: d.ID, Score: p.Weights.blend(lexical[d.ID], v)})
		}
	}
	return out, nil
}
