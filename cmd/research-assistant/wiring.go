// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/embed"
	"github.com/pdiddy/research-assistant/internal/fetch"
	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/internal/pipeline"
	"github.com/pdiddy/research-assistant/internal/planner"
	"github.com/pdiddy/research-assistant/internal/rank"
	"github.com/pdiddy/research-assistant/internal/source"
	"github.com/pdiddy/research-assistant/internal/writer"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// stages holds the pipeline components built from one configuration.
type stages struct {
	cfg      types.Config
	registry *source.Registry
	gen      llm.Generator
	closers  []io.Closer
}

func (s *stages) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// newStages builds the source registry and generator. When requireGen is
// false a generator that cannot be built is logged and planning falls back
// to the deterministic plan.
func newStages(cfg types.Config, requireGen bool) (*stages, error) {
	registry := source.FromConfig(cfg.Sources, logger)
	if registry.Len() == 0 {
		return nil, fmt.Errorf("no sources enabled: enable at least one of sources.enable_arxiv, enable_semantic_scholar, enable_openalex, enable_pubmed")
	}
	gen, err := llm.New(cfg.Generation)
	if err != nil {
		if requireGen {
			return nil, err
		}
		logger.Warn("generation unavailable, using fallback plans", zap.Error(err))
		gen = nil
	}
	return &stages{cfg: cfg, registry: registry, gen: gen}, nil
}

func (s *stages) planner() *planner.Planner {
	return planner.New(s.gen, s.registry.IDs(), s.cfg.Planner, logger)
}

func (s *stages) fetcher() *fetch.Fetcher {
	return fetch.New(s.registry, s.cfg.Fetch, logger)
}

func (s *stages) analyzer(ctx context.Context) (*rank.Analyzer, error) {
	emb, err := embed.New(s.cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	s.closers = append(s.closers, emb)

	hybrid, closer, err := rank.NewHybrid(ctx, s.cfg.Rank, &http.Client{Timeout: s.cfg.Rank.HybridTimeout})
	if err != nil {
		return nil, fmt.Errorf("hybrid backend: %w", err)
	}
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
	selector := rank.NewSelector(hybrid, s.cfg.Rank.HybridTimeout, logger)
	return rank.New(emb, selector, s.gen, rank.ConfigFrom(s.cfg), logger), nil
}

func (s *stages) pipeline(ctx context.Context, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	analyzer, err := s.analyzer(ctx)
	if err != nil {
		return nil, err
	}
	w := writer.New(s.gen, s.cfg.Writer, logger)
	return pipeline.New(s.planner(), s.fetcher(), analyzer, w, logger, opts...), nil
}
