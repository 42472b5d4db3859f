// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch executes a SearchPlan against the registered source clients
// concurrently and returns a deduplicated, truncated PaperSet.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-assistant/internal/source"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// SourceFailure records why one source contributed no papers.
type SourceFailure struct {
	Source types.SourceID
	Err    error
}

// Result is the outcome of a fetch.
type Result struct {
	// Papers is the deduplicated set, at most plan.MaxPapers long.
	Papers *types.PaperSet

	// Raw counts the papers returned by all sources before dedup.
	Raw int

	// DuplicatesRemoved counts records dropped as duplicates.
	DuplicatesRemoved int

	// Truncated counts unique papers dropped to honor plan.MaxPapers.
	Truncated int

	// PerSource counts the papers each successful source returned.
	PerSource map[types.SourceID]int

	// Failed lists the sources whose calls failed after all attempts.
	Failed []SourceFailure

	// Widened is set when the planned sources returned nothing and the
	// remaining registered sources were queried.
	Widened bool
}

// FailedSources returns the ids of the failed sources.
func (r Result) FailedSources() []types.SourceID {
	ids := make([]types.SourceID, len(r.Failed))
	for i, f := range r.Failed {
		ids[i] = f.Source
	}
	return ids
}

// Fetcher queries sources for a plan.
type Fetcher struct {
	registry *source.Registry
	cfg      types.FetchConfig
	logger   *zap.Logger
}

// New returns a fetcher over the clients in registry.
func New(registry *source.Registry, cfg types.FetchConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	return &Fetcher{registry: registry, cfg: cfg, logger: logger.Named("fetch")}
}

// sourceResult is what one source contributed, kept in plan order.
type sourceResult struct {
	id     types.SourceID
	papers []types.Paper
	err    error
}

// Fetch runs plan. Individual source failures degrade to zero papers from
// that source. It fails with types.ErrNoPapersFound only when no source
// produced a paper.
func (f *Fetcher) Fetch(ctx context.Context, plan types.SearchPlan) (Result, error) {
	if plan.MaxPapers <= 0 {
		return Result{}, fmt.Errorf("%w: plan max_papers must be positive", types.ErrInvalidInput)
	}
	if len(plan.Keywords) == 0 || len(plan.Sources) == 0 {
		return Result{}, fmt.Errorf("%w: plan needs keywords and sources", types.ErrInvalidInput)
	}

	results := f.fanOut(ctx, plan, plan.Sources)

	widened := false
	if f.cfg.WidenOnEmpty && countPapers(results) == 0 {
		var rest []types.SourceID
		for _, id := range f.registry.IDs() {
			if !plan.HasSource(id) {
				rest = append(rest, id)
			}
		}
		if len(rest) > 0 && ctx.Err() == nil {
			f.logger.Warn("planned sources returned nothing, widening",
				zap.Int("extra_sources", len(rest)))
			results = append(results, f.fanOut(ctx, plan, rest)...)
			widened = true
		}
	}

	res := Result{PerSource: make(map[types.SourceID]int), Widened: widened}
	var all []types.Paper
	for _, sr := range results {
		if sr.err != nil {
			res.Failed = append(res.Failed, SourceFailure{Source: sr.id, Err: sr.err})
			f.logger.Warn("source failed", zap.String("source", string(sr.id)), zap.Error(sr.err))
			continue
		}
		res.PerSource[sr.id] = len(sr.papers)
		all = append(all, sr.papers...)
	}
	res.Raw = len(all)

	unique := deduplicate(all)
	res.DuplicatesRemoved = len(all) - len(unique)

	kept := truncate(unique, plan.MaxPapers)
	res.Truncated = len(unique) - len(kept)

	res.Papers = types.NewPaperSet()
	for _, p := range kept {
		res.Papers.Add(p)
	}

	f.logger.Info("fetched",
		zap.Int("raw", res.Raw),
		zap.Int("unique", len(unique)),
		zap.Int("kept", res.Papers.Len()),
		zap.Int("failed_sources", len(res.Failed)),
	)

	if res.Papers.Len() == 0 {
		if len(res.Failed) == len(results) {
			return res, fmt.Errorf("%w: all %d sources failed: %w",
				types.ErrNoPapersFound, len(results), joinFailures(res.Failed))
		}
		return res, fmt.Errorf("%w: sources returned no results for %q",
			types.ErrNoPapersFound, plan.QueryString())
	}
	return res, nil
}

// fanOut queries ids concurrently and returns their results in ids order.
func (f *Fetcher) fanOut(ctx context.Context, plan types.SearchPlan, ids []types.SourceID) []sourceResult {
	results := make([]sourceResult, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		results[i].id = id
		client, ok := f.registry.Get(id)
		if !ok {
			results[i].err = fmt.Errorf("%w: %s: not enabled", types.ErrSourceUnavailable, id)
			continue
		}
		g.Go(func() error {
			results[i].papers, results[i].err = f.searchWithRetry(ctx, client, plan)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// searchWithRetry calls client up to cfg.Attempts times, each under
// cfg.Timeout, doubling cfg.Backoff between attempts.
func (f *Fetcher) searchWithRetry(ctx context.Context, client source.Client, plan types.SearchPlan) ([]types.Paper, error) {
	var lastErr error
	for attempt := 0; attempt < f.cfg.Attempts; attempt++ {
		if attempt > 0 {
			wait := f.cfg.Backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %s: %w", types.ErrSourceUnavailable, client.Name(), ctx.Err())
			case <-time.After(wait):
			}
		}

		callCtx, cancel := f.callContext(ctx)
		papers, err := client.Search(callCtx, plan.Keywords, plan.MaxPapers)
		cancel()
		if err == nil {
			return papers, nil
		}
		lastErr = err
		f.logger.Debug("source attempt failed",
			zap.String("source", string(client.Name())),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	if !errors.Is(lastErr, types.ErrSourceUnavailable) {
		lastErr = fmt.Errorf("%w: %s: %w", types.ErrSourceUnavailable, client.Name(), lastErr)
	}
	return nil, lastErr
}

func (f *Fetcher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, f.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func countPapers(results []sourceResult) int {
	n := 0
	for _, r := range results {
		n += len(r.papers)
	}
	return n
}

func joinFailures(failed []SourceFailure) error {
	errs := make([]error, len(failed))
	for i, sf := range failed {
		errs[i] = sf.Err
	}
	return errors.Join(errs...)
}

// deduplicate keeps the first record for each id and for each normalized
// (title, first author surname) pair.
func deduplicate(papers []types.Paper) []types.Paper {
	seenID := make(map[string]bool)
	seenKey := make(map[string]bool)
	var out []types.Paper
	for _, p := range papers {
		if seenID[p.ID] {
			continue
		}
		key := dedupKey(p)
		if key != "" && seenKey[key] {
			continue
		}
		seenID[p.ID] = true
		if key != "" {
			seenKey[key] = true
		}
		out = append(out, p)
	}
	return out
}

// dedupKey returns "title|surname", or "" when the title is empty.
func dedupKey(p types.Paper) string {
	title := normalizeTitle(p.Title)
	if title == "" {
		return ""
	}
	var surname string
	if len(p.Authors) > 0 {
		surname = firstAuthorSurname(p.Authors[0])
	}
	return title + "|" + surname
}

// normalizeTitle returns a lowercased, punctuation-stripped version of the title.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// firstAuthorSurname handles both "Given Family" and "Family, Given".
func firstAuthorSurname(author string) string {
	author = strings.TrimSpace(author)
	if i := strings.Index(author, ","); i > 0 {
		author = author[:i]
	} else if fields := strings.Fields(author); len(fields) > 0 {
		author = fields[len(fields)-1]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(author) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// truncate keeps the best limit papers by source rank, then recency, then
// fetch order, and returns them in fetch order.
func truncate(papers []types.Paper, limit int) []types.Paper {
	if len(papers) <= limit {
		return papers
	}
	idx := make([]int, len(papers))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		pa, pb := papers[idx[a]], papers[idx[b]]
		if pa.SourceRank != pb.SourceRank {
			return pa.SourceRank > pb.SourceRank
		}
		if !pa.PublishedDate.Equal(pb.PublishedDate) {
			return pa.PublishedDate.After(pb.PublishedDate)
		}
		return idx[a] < idx[b]
	})
	keep := idx[:limit]
	sort.Ints(keep)

	out := make([]types.Paper, len(keep))
	for i, k := range keep {
		out[i] = papers[k]
	}
	return out
}
