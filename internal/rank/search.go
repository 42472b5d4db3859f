// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Query is the text and embedding a backend ranks documents against.
type Query struct {
	Text      string
	Embedding []float32
}

// Document is one embedded paper offered to a backend.
type Document struct {
	ID        string
	Text      string
	Embedding []float32
}

// Scored is a backend's relevance for one document id. Scores are expected
// in [0,1]; the analyzer clamps whatever a backend returns.
type Scored struct {
	ID    string
	Score float64
}

// SimilaritySearch ranks documents against a query. Implementations return
// one Scored per document they could score, in any order.
type SimilaritySearch interface {
	Name() string
	Rank(ctx context.Context, q Query, docs []Document) ([]Scored, error)
}

// Prober is implemented by backends that depend on an external service and
// can report whether it is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// ErrBackendUnavailable is returned by a hybrid backend that cannot serve a
// request. The selector treats it like any other hybrid failure.
var ErrBackendUnavailable = errors.New("similarity backend unavailable")

// Cosine ranks by in-process cosine similarity mapped from [-1,1] to [0,1].
// It has no external dependency and never fails.
type Cosine struct{}

// CosineName is the fallback backend's name.
const CosineName = "cosine"

// Name returns "cosine".
func (Cosine) Name() string { return CosineName }

// Rank scores every document.
func (Cosine) Rank(_ context.Context, q Query, docs []Document) ([]Scored, error) {
	out := make([]Scored, len(docs))
	for i, d := range docs {
		out[i] = Scored{ID: d.ID, Score: vectorScore(q.Embedding, d.Embedding)}
	}
	return out, nil
}

// vectorScore maps cosine similarity to [0,1]. Mismatched or zero vectors
// score 0.
func vectorScore(a, b []float32) float64 {
	c, ok := cosine(a, b)
	if !ok {
		return 0
	}
	return clamp01((c + 1) / 2)
}

func cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// maxScale divides every score by the largest one. Use it for scores that
// are zero when nothing matched, so a weak match stays above no match.
func maxScale(scores map[string]float64) map[string]float64 {
	hi := 0.0
	for _, s := range scores {
		hi = max(hi, s)
	}
	out := make(map[string]float64, len(scores))
	for id, s := range scores {
		if hi > 0 {
			out[id] = clamp01(s / hi)
		} else {
			out[id] = 0
		}
	}
	return out
}

// Weights blend the lexical and vector scores of a hybrid backend.
type Weights struct {
	Lexical float64
	Vector  float64
}

// blend returns the weighted mean of the two scores. Zero weights fall back
// to an even split.
func (w Weights) blend(lexical, vector float64) float64 {
	lw, vw := max(w.Lexical, 0), max(w.Vector, 0)
	if lw+vw == 0 {
		lw, vw = 0.5, 0.5
	}
	return clamp01((lw*lexical + vw*vector) / (lw + vw))
}

// Selector picks the ranking backend for one run. The hybrid backend is
// tried first, bounded by Timeout for the probe and again for the ranking
// call; any failure, timeout or empty answer switches to Fallback.
type Selector struct {
	Hybrid   SimilaritySearch
	Fallback SimilaritySearch
	Timeout  time.Duration
	logger   *zap.Logger
}

// NewSelector returns a selector that falls back to Cosine. A nil hybrid
// always uses the fallback.
func NewSelector(hybrid SimilaritySearch, timeout time.Duration, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{Hybrid: hybrid, Fallback: Cosine{}, Timeout: timeout, logger: logger.Named("selector")}
}

// Rank scores docs and reports which backend produced the scores.
func (s *Selector) Rank(ctx context.Context, q Query, docs []Document) ([]Scored, string, error) {
	fallback := s.Fallback
	if fallback == nil {
		fallback = Cosine{}
	}
	if s.Hybrid != nil {
		scored, err := s.tryHybrid(ctx, q, docs)
		if err == nil {
			return scored, s.Hybrid.Name(), nil
		}
		s.logger.Warn("hybrid ranking unavailable, using fallback",
			zap.String("backend", s.Hybrid.Name()),
			zap.String("fallback", fallback.Name()),
			zap.Error(err))
	}
	scored, err := fallback.Rank(ctx, q, docs)
	if err != nil {
		return nil, fallback.Name(), fmt.Errorf("%s ranking: %w", fallback.Name(), err)
	}
	return scored, fallback.Name(), nil
}

func (s *Selector) tryHybrid(ctx context.Context, q Query, docs []Document) ([]Scored, error) {
	if p, ok := s.Hybrid.(Prober); ok {
		if err := s.bounded(ctx, func(ctx context.Context) error { return p.Probe(ctx) }); err != nil {
			return nil, fmt.Errorf("probe: %w", err)
		}
	}
	var scored []Scored
	err := s.bounded(ctx, func(ctx context.Context) error {
		var err error
		scored, err = s.Hybrid.Rank(ctx, q, docs)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 && len(docs) > 0 {
		return nil, fmt.Errorf("%w: %s returned no scores", ErrBackendUnavailable, s.Hybrid.Name())
	}
	return scored, nil
}

// bounded runs fn under Timeout and returns when either fn finishes or the
// deadline passes, so a backend that ignores its context cannot stall the run.
func (s *Selector) bounded(ctx context.Context, fn func(context.Context) error) error {
	if s.Timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, ctx.Err())
	}
}
