// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/httputil"
	"github.com/pdiddy/research-assistant/pkg/types"
)

func TestMain(m *testing.M) {
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

// countingProvider returns [len(text), 1] for every text and counts the
// texts it was asked to embed.
type countingProvider struct {
	texts atomic.Int32
	calls atomic.Int32
}

func (c *countingProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int32(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestOllamaEmbed(t *testing.T) {
	var got ollamaEmbedRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"embeddings":[[0.1,0.2],[0.3,0.4]]}`)
	}))
	defer ts.Close()

	o := &Ollama{BaseURL: ts.URL, Model: "nomic-embed-text", Client: ts.Client()}
	vecs, err := o.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, "nomic-embed-text", got.Model)
	assert.Equal(t, []string{"a", "b"}, got.Input)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
}

func TestOllamaEmbedErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"status", "", http.StatusInternalServerError},
		{"count mismatch", `{"embeddings":[[1]]}`, http.StatusOK},
		{"bad json", `{`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
				fmt.Fprint(w, tt.body)
			}))
			defer ts.Close()

			o := &Ollama{BaseURL: ts.URL, Model: "m", Client: ts.Client()}
			_, err := o.Embed(context.Background(), []string{"a", "b"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrProvider))
		})
	}
}

func TestOpenAIEmbedOrdersByIndex(t *testing.T) {
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		fmt.Fprint(w, `{"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}`)
	}))
	defer ts.Close()

	o := &OpenAI{BaseURL: ts.URL, Model: "text-embedding-3-small", APIKey: "sk", Client: ts.Client()}
	vecs, err := o.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, vecs)
	assert.Equal(t, "Bearer sk", auth)
}

func TestLRUCache(t *testing.T) {
	inner := &countingProvider{}
	c, err := NewLRUCache(16, "m", inner)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := c.Embed(ctx, []string{"alpha", "be"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{5, 1}, {2, 1}}, first)

	second, err := c.Embed(ctx, []string{"be", "gamma", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2, 1}, {5, 1}, {5, 1}}, second)

	assert.EqualValues(t, 3, inner.texts.Load(), "only misses reach the provider")
	assert.EqualValues(t, 2, inner.calls.Load())

	_, err = c.Embed(ctx, []string{"gamma", "alpha"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, inner.calls.Load(), "all hits skip the provider")
}

func TestCacheKeyScopedByModel(t *testing.T) {
	assert.NotEqual(t, cacheKey("a", "text"), cacheKey("b", "text"))
	assert.Equal(t, cacheKey("a", "text"), cacheKey("a", "text"))
}

func TestSQLiteCachePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "embeddings.db")
	ctx := context.Background()

	inner := &countingProvider{}
	c, err := OpenSQLiteCache(path, "m", inner)
	require.NoError(t, err)
	_, err = c.Embed(ctx, []string{"persist me", "x"})
	require.NoError(t, err)
	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, c.Close())

	reopened := &countingProvider{}
	c, err = OpenSQLiteCache(path, "m", reopened)
	require.NoError(t, err)
	defer c.Close()

	vecs, err := c.Embed(ctx, []string{"persist me"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{10, 1}}, vecs)
	assert.EqualValues(t, 0, reopened.calls.Load())
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0, -1.5, 3.25, 1e-7}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
}

func TestRateLimitedHonorsContext(t *testing.T) {
	inner := &countingProvider{}
	p := RateLimited(inner, 0.001)

	_, err := p.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Embed(ctx, []string{"b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrProvider))
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestNewBuildsStack(t *testing.T) {
	cfg := types.DefaultConfig().Embedding
	cfg.CachePath = filepath.Join(t.TempDir(), "e.db")
	cfg.RequestsPerSecond = 5

	svc, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer svc.Close()
	assert.IsType(t, &LRUCache{}, svc.Provider)
	assert.Len(t, svc.closers, 1)

	cfg = types.DefaultConfig().Embedding
	cfg.CacheSize = 0
	svc, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, svc.Provider)
	assert.NoError(t, svc.Close())

	cfg.Provider = "openai"
	_, err = New(cfg, nil)
	assert.ErrorContains(t, err, "API key")

	cfg.Provider = "word2vec"
	_, err = New(cfg, nil)
	assert.ErrorContains(t, err, "unknown embedding provider")
}
