// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed turns text into vectors for similarity ranking. Providers
// call a remote model; decorators add rate limiting and caching without
// changing the Provider contract.
package embed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// Provider embeds a batch of texts. The result has one vector per input, in
// input order. Every error wraps types.ErrProvider.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Embed calls f.
func (f ProviderFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

// Service is the configured provider stack. Close releases the persistent
// cache, if any.
type Service struct {
	Provider
	closers []io.Closer
}

// Close releases resources held by the stack.
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// New builds the provider selected by cfg.Provider and wraps it, innermost
// first, in a rate limiter, a persistent SQLite cache and an in-memory LRU.
func New(cfg types.EmbeddingConfig, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{Timeout: cfg.Timeout}

	var p Provider
	switch cfg.Provider {
	case "ollama", "":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("ollama embeddings require embedding.base_url")
		}
		p = &Ollama{BaseURL: strings.TrimRight(cfg.BaseURL, "/"), Model: cfg.Model, Client: client}
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embeddings require an API key (set embedding.api_key or .secrets/openai-api-key)")
		}
		p = &OpenAI{BaseURL: strings.TrimRight(cfg.BaseURL, "/"), Model: cfg.Model, APIKey: cfg.APIKey, Client: client}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid: ollama, openai)", cfg.Provider)
	}

	svc := &Service{}
	if cfg.RequestsPerSecond > 0 {
		p = RateLimited(p, cfg.RequestsPerSecond)
	}
	if cfg.CachePath != "" {
		sc, err := OpenSQLiteCache(cfg.CachePath, cfg.Model, p)
		if err != nil {
			return nil, err
		}
		logger.Debug("embedding cache opened", zap.String("path", cfg.CachePath))
		svc.closers = append(svc.closers, sc)
		p = sc
	}
	if cfg.CacheSize > 0 {
		lc, err := NewLRUCache(cfg.CacheSize, cfg.Model, p)
		if err != nil {
			return nil, err
		}
		p = lc
	}
	svc.Provider = p
	return svc, nil
}

// providerError wraps a failure in types.ErrProvider.
func providerError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrProvider, fmt.Sprintf(format, args...))
}

// checkCount verifies that a provider returned one vector per input.
func checkCount(got, want int) error {
	if got != want {
		return providerError("got %d embeddings for %d inputs", got, want)
	}
	return nil
}
