// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// store is the key/value backend of a caching decorator. Implementations
// must be safe for concurrent use.
type store interface {
	get(ctx context.Context, key string) ([]float32, bool)
	put(ctx context.Context, key string, vec []float32) error
}

// cached serves hits from a store and forwards only the misses to next, in
// one batch.
type cached struct {
	store store
	model string
	next  Provider
}

func (c *cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		keys[i] = cacheKey(c.model, t)
		if v, ok := c.store.get(ctx, keys[i]); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if err := checkCount(len(vecs), len(missTexts)); err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		if len(vecs[j]) == 0 {
			continue
		}
		if err := c.store.put(ctx, keys[i], vecs[j]); err != nil {
			return nil, providerError("caching embedding: %v", err)
		}
	}
	return out, nil
}

// cacheKey is scoped by model so that switching models never serves
// vectors from another embedding space.
func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// LRUCache keeps the most recently used embeddings in memory.
type LRUCache struct {
	cached
}

// NewLRUCache wraps next with an in-memory cache of at most size vectors.
func NewLRUCache(size int, model string, next Provider) (*LRUCache, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("creating embedding LRU: %w", err)
	}
	return &LRUCache{cached{store: lruStore{c}, model: model, next: next}}, nil
}

type lruStore struct {
	c *lru.Cache[string, []float32]
}

func (s lruStore) get(_ context.Context, key string) ([]float32, bool) {
	return s.c.Get(key)
}

func (s lruStore) put(_ context.Context, key string, vec []float32) error {
	s.c.Add(key, vec)
	return nil
}
