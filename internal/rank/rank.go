// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rank embeds fetched papers, ranks them against the query through a
// pluggable similarity backend with an in-process cosine fallback, and
// clusters the top papers into named themes.
package rank

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-assistant/internal/embed"
	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// Config groups the settings the analyzer reads.
type Config struct {
	Rank   types.RankConfig
	Themes types.ThemeConfig

	// BatchSize and Concurrency shape embedding calls.
	BatchSize   int
	Concurrency int
}

// ConfigFrom extracts the analyzer settings from the pipeline config.
func ConfigFrom(cfg types.Config) Config {
	return Config{
		Rank:        cfg.Rank,
		Themes:      cfg.Themes,
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
	}
}

// Analysis is the output of Analyze.
type Analysis struct {
	// Ranked is ordered by descending relevance, ties by fetch order.
	Ranked []types.RankedPaper

	Themes []types.Theme

	// Backend names the similarity backend that produced the scores.
	Backend string

	// Unembedded lists the ids of papers excluded because embedding failed.
	Unembedded []string

	// Scored counts the papers ranked before TopK truncation.
	Scored int
}

// Analyzer ranks and clusters papers.
type Analyzer struct {
	embedder embed.Provider
	selector *Selector
	gen      llm.Generator
	cfg      Config
	logger   *zap.Logger
}

// New returns an analyzer. A nil selector ranks with Cosine only; a nil
// generator names every theme from its top paper.
func New(embedder embed.Provider, selector *Selector, gen llm.Generator, cfg Config, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if selector == nil {
		selector = NewSelector(nil, 0, logger)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Analyzer{
		embedder: embedder,
		selector: selector,
		gen:      gen,
		cfg:      cfg,
		logger:   logger.Named("rank"),
	}
}

// Analyze embeds, ranks and clusters the papers in set. It fails with
// types.ErrAnalysis only when the query or every paper cannot be embedded.
func (a *Analyzer) Analyze(ctx context.Context, query string, set *types.PaperSet) (Analysis, error) {
	papers := set.Papers()
	if len(papers) == 0 {
		return Analysis{}, fmt.Errorf("%w: no papers to analyze", types.ErrAnalysis)
	}

	qvec, err := a.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: embedding query: %w", types.ErrAnalysis, err)
	}
	if len(qvec) != 1 || len(qvec[0]) == 0 {
		return Analysis{}, fmt.Errorf("%w: provider returned no query embedding", types.ErrAnalysis)
	}

	vectors := a.embedPapers(ctx, papers)

	var res Analysis
	var docs []Document
	for i, p := range papers {
		if len(vectors[i]) == 0 {
			res.Unembedded = append(res.Unembedded, p.ID)
			continue
		}
		papers[i].Embedding = vectors[i]
		docs = append(docs, Document{ID: p.ID, Text: paperText(p), Embedding: vectors[i]})
	}
	if len(docs) == 0 {
		return Analysis{Unembedded: res.Unembedded},
			fmt.Errorf("%w: embedding failed for all %d papers", types.ErrAnalysis, len(papers))
	}
	if len(res.Unembedded) > 0 {
		a.logger.Warn("papers excluded from ranking",
			zap.Int("unembedded", len(res.Unembedded)), zap.Int("papers", len(papers)))
	}

	scored, backend, err := a.selector.Rank(ctx, Query{Text: query, Embedding: qvec[0]}, docs)
	if err != nil {
		return Analysis{Unembedded: res.Unembedded}, fmt.Errorf("%w: %w", types.ErrAnalysis, err)
	}
	res.Backend = backend

	scores := make(map[string]float64, len(scored))
	for _, s := range scored {
		scores[s.ID] = clamp01(s.Score)
	}
	ranked := make([]types.RankedPaper, 0, len(docs))
	for i, p := range papers {
		if len(p.Embedding) == 0 {
			continue
		}
		ranked = append(ranked, types.RankedPaper{Paper: p, RelevanceScore: scores[p.ID], FetchIndex: i})
	}
	sortRanked(ranked)
	res.Scored = len(ranked)
	if k := a.cfg.Rank.TopK; k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	res.Ranked = ranked

	res.Themes = a.extractThemes(ctx, query, ranked)

	a.logger.Info("analyzed",
		zap.String("backend", backend),
		zap.Int("ranked", len(res.Ranked)),
		zap.Int("themes", len(res.Themes)),
		zap.Int("unembedded", len(res.Unembedded)),
	)
	return res, nil
}

// sortRanked orders by descending score with ties broken by fetch order.
func sortRanked(ranked []types.RankedPaper) {
	slices.SortStableFunc(ranked, func(x, y types.RankedPaper) int {
		switch {
		case x.Less(y):
			return -1
		case y.Less(x):
			return 1
		}
		return 0
	})
}

// embedPapers returns one vector per paper; a nil entry means the paper
// could not be embedded. Batches run concurrently. A failed batch is retried
// one paper at a time so that a single bad input excludes only itself.
func (a *Analyzer) embedPapers(ctx context.Context, papers []types.Paper) [][]float32 {
	vectors := make([][]float32, len(papers))

	var g errgroup.Group
	g.SetLimit(a.cfg.Concurrency)
	for start := 0; start < len(papers); start += a.cfg.BatchSize {
		end := min(start+a.cfg.BatchSize, len(papers))
		g.Go(func() error {
			a.embedBatch(ctx, papers[start:end], vectors[start:end])
			return nil
		})
	}
	_ = g.Wait()
	return vectors
}

func (a *Analyzer) embedBatch(ctx context.Context, papers []types.Paper, out [][]float32) {
	texts := make([]string, len(papers))
	for i, p := range papers {
		texts[i] = paperText(p)
	}
	vecs, err := a.embedder.Embed(ctx, texts)
	if err == nil && len(vecs) == len(texts) {
		copy(out, vecs)
		return
	}
	a.logger.Debug("embedding batch failed, retrying per paper",
		zap.Int("batch", len(texts)), zap.Error(err))

	for i, text := range texts {
		v, err := a.embedder.Embed(ctx, []string{text})
		if err != nil || len(v) != 1 {
			a.logger.Debug("paper not embedded", zap.String("paper", papers[i].ID), zap.Error(err))
			continue
		}
		out[i] = v[0]
	}
}

// paperText is what gets embedded and lexically indexed for a paper: the
// abstract, or the title when there is none.
func paperText(p types.Paper) string {
	if s := strings.TrimSpace(p.Abstract); s != "" {
		return s
	}
	return strings.TrimSpace(p.Title)
}

// NewHybrid builds the hybrid backend named by cfg.HybridBackend. It returns
// a nil backend for "none". The returned closer is non-nil when the backend
// holds resources.
func NewHybrid(ctx context.Context, cfg types.RankConfig, client *http.Client) (SimilaritySearch, io.Closer, error) {
	w := Weights{Lexical: cfg.LexicalWeight, Vector: cfg.VectorWeight}
	switch cfg.HybridBackend {
	case types.HybridSQLite, "":
		return NewSQLiteHybrid(w), nil, nil
	case types.HybridVespa:
		if cfg.VespaURL == "" {
			return nil, nil, fmt.Errorf("vespa backend requires rank.vespa_url")
		}
		return NewVespa(cfg.VespaURL, cfg.VespaConfigURL, client), nil, nil
	case types.HybridPgvector:
		if cfg.PgvectorDSN == "" {
			return nil, nil, fmt.Errorf("pgvector backend requires rank.pgvector_dsn or .secrets/pgvector-dsn")
		}
		pg, err := NewPgvectorHybrid(ctx, cfg.PgvectorDSN, w)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg, nil
	case types.HybridNone:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown hybrid backend %q (valid: sqlite, vespa, pgvector, none)", cfg.HybridBackend)
	}
}
