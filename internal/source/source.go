// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source queries academic databases and normalizes their records into
// types.Paper. Each database is one Client; the fetch stage treats any Client
// failure as zero results from that source.
package source

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// defaultLimit is used when a caller passes a non-positive limit.
const defaultLimit = 20

// Client searches a single academic database. Implementations return papers
// in the database's relevance order with SourceRank set from that position.
// Every error wraps types.ErrSourceUnavailable.
type Client interface {
	Name() types.SourceID
	Search(ctx context.Context, keywords []string, limit int) ([]types.Paper, error)
}

// Registry holds the clients available to a run, keyed by source id.
type Registry struct {
	clients map[types.SourceID]Client
	order   []types.SourceID
}

// NewRegistry returns a registry over the given clients. A later client with
// the same name replaces an earlier one.
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[types.SourceID]Client)}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds or replaces c.
func (r *Registry) Register(c Client) {
	id := c.Name()
	if _, ok := r.clients[id]; !ok {
		r.order = append(r.order, id)
	}
	r.clients[id] = c
}

// Get returns the client for id.
func (r *Registry) Get(id types.SourceID) (Client, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.clients[id]
	return c, ok
}

// IDs returns the registered source ids in registration order.
func (r *Registry) IDs() []types.SourceID {
	if r == nil {
		return nil
	}
	return append([]types.SourceID(nil), r.order...)
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// FromConfig builds a registry with one client per enabled source. All
// clients share one HTTP client bounded by cfg.Timeout and, when
// cfg.RequestsPerSecond is positive, each is wrapped in its own limiter.
func FromConfig(cfg types.SourcesConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &http.Client{Timeout: cfg.Timeout}

	r := NewRegistry()
	for _, id := range cfg.Enabled() {
		var c Client
		switch id {
		case types.SourceArxiv:
			c = &Arxiv{Client: hc, UserAgent: cfg.UserAgent}
		case types.SourceSemanticScholar:
			c = &SemanticScholar{Client: hc, UserAgent: cfg.UserAgent, APIKey: cfg.SemanticScholarAPIKey}
		case types.SourceOpenAlex:
			c = &OpenAlex{Client: hc, UserAgent: cfg.UserAgent, Email: cfg.OpenAlexEmail}
		case types.SourcePubMed:
			c = &PubMed{Client: hc, UserAgent: cfg.UserAgent, APIKey: cfg.PubMedAPIKey}
		default:
			continue
		}
		if cfg.RequestsPerSecond > 0 {
			c = RateLimited(c, cfg.RequestsPerSecond)
		}
		r.Register(c)
		logger.Debug("registered source", zap.String("source", string(id)))
	}
	return r
}

// limited throttles calls to a wrapped client.
type limited struct {
	Client
	limiter *rate.Limiter
}

// RateLimited wraps c so that it is called at most rps times per second.
func RateLimited(c Client, rps float64) Client {
	return &limited{Client: c, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (l *limited) Search(ctx context.Context, keywords []string, limit int) ([]types.Paper, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, unavailable(l.Name(), "rate limiter: %v", err)
	}
	return l.Client.Search(ctx, keywords, limit)
}

// unavailable builds an error that wraps types.ErrSourceUnavailable.
func unavailable(src types.SourceID, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", types.ErrSourceUnavailable, src, fmt.Sprintf(format, args...))
}

// positionScore maps a result position to a relevance in [0.1, 1].
func positionScore(i, total int) float64 {
	if total <= 1 {
		return 1.0
	}
	return 1.0 - float64(i)/float64(total-1)*0.9
}

func normalizeLimit(limit, max int) int {
	if limit <= 0 {
		limit = defaultLimit
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}

func newRequest(ctx context.Context, url, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return req, nil
}
