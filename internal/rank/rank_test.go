// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/embed"
	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/pkg/types"
)

const testDim = 64

// bagOfWords embeds text as hashed word counts. Texts containing "poison"
// fail, as does every call when failAll is set.
type bagOfWords struct {
	failAll atomic.Bool
	calls   atomic.Int32
}

func (b *bagOfWords) Embed(_ context.Context, texts []string) ([][]float32, error) {
	b.calls.Add(1)
	if b.failAll.Load() {
		return nil, fmt.Errorf("%w: quota exceeded", types.ErrProvider)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "poison") {
			return nil, fmt.Errorf("%w: bad input", types.ErrProvider)
		}
		out[i] = hashVector(t)
	}
	return out, nil
}

func hashVector(text string) []float32 {
	v := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%testDim]++
	}
	return v
}

func paperSet(abstracts ...string) *types.PaperSet {
	set := types.NewPaperSet()
	for i, a := range abstracts {
		set.Add(types.Paper{
			ID:       fmt.Sprintf("arxiv:%d", i),
			Title:    fmt.Sprintf("Paper %d", i),
			Abstract: a,
			Source:   types.SourceArxiv,
		})
	}
	return set
}

func testConfig() Config {
	cfg := types.DefaultConfig()
	c := ConfigFrom(cfg)
	c.BatchSize = 3
	c.Concurrency = 2
	return c
}

func namer(name string) llm.Generator {
	return llm.GeneratorFunc(func(context.Context, string, int) (string, error) {
		return fmt.Sprintf(`{"name": %q, "description": "Shared topic."}`, name), nil
	})
}

func failingGen() llm.Generator {
	return llm.GeneratorFunc(func(context.Context, string, int) (string, error) {
		return "", fmt.Errorf("%w: overloaded", types.ErrGeneration)
	})
}

func TestAnalyzeRanksByRelevance(t *testing.T) {
	set := paperSet(
		"protein folding with deep learning",
		"graph neural networks",
		"a survey of graph neural networks for molecules",
	)
	a := New(&bagOfWords{}, nil, nil, testConfig(), zap.NewNop())

	res, err := a.Analyze(context.Background(), "graph neural networks", set)
	require.NoError(t, err)

	assert.Equal(t, CosineName, res.Backend)
	require.Len(t, res.Ranked, 3)
	assert.Equal(t, "arxiv:1", res.Ranked[0].ID)
	assert.InDelta(t, 1.0, res.Ranked[0].RelevanceScore, 1e-9)
	assert.Equal(t, 1, res.Ranked[0].FetchIndex)
	for i := 1; i < len(res.Ranked); i++ {
		assert.False(t, res.Ranked[i].Less(res.Ranked[i-1]), "ranked order is sorted")
	}
	for _, rp := range res.Ranked {
		assert.NotEmpty(t, rp.Embedding)
		assert.True(t, set.Contains(rp.ID))
	}
}

func TestAnalyzeTiesKeepFetchOrder(t *testing.T) {
	set := paperSet("same text", "same text", "same text", "same text")
	res, err := New(&bagOfWords{}, nil, nil, testConfig(), nil).
		Analyze(context.Background(), "other words", set)
	require.NoError(t, err)
	var ids []string
	for _, rp := range res.Ranked {
		ids = append(ids, rp.ID)
	}
	assert.Equal(t, set.IDs(), ids)
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	set := paperSet(
		"attention mechanisms in transformers",
		"recurrent networks for speech",
		"sparse attention for long documents",
		"convolutional networks for vision",
		"transformer language models",
		"attention is all you need",
	)
	for _, backend := range []SimilaritySearch{Cosine{}, NewSQLiteHybrid(Weights{0.5, 0.5})} {
		t.Run(backend.Name(), func(t *testing.T) {
			a := New(&bagOfWords{}, NewSelector(backend, time.Second, nil), nil, testConfig(), nil)
			first, err := a.Analyze(context.Background(), "transformer attention", set)
			require.NoError(t, err)
			second, err := a.Analyze(context.Background(), "transformer attention", set)
			require.NoError(t, err)

			assert.Equal(t, backend.Name(), first.Backend)
			require.Equal(t, len(first.Ranked), len(second.Ranked))
			for i := range first.Ranked {
				assert.Equal(t, first.Ranked[i].ID, second.Ranked[i].ID)
				assert.Equal(t, first.Ranked[i].RelevanceScore, second.Ranked[i].RelevanceScore)
			}
		})
	}
}

// brokenBackend always fails or blocks until its context ends.
type brokenBackend struct {
	block bool
	calls atomic.Int32
}

func (b *brokenBackend) Name() string { return "broken" }

func (b *brokenBackend) Rank(ctx context.Context, _ Query, _ []Document) ([]Scored, error) {
	b.calls.Add(1)
	if b.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, errors.New("connection refused")
}

func TestAnalyzeFallsBackWhenHybridFails(t *testing.T) {
	set := paperSet("alpha beta", "beta gamma", "gamma delta")
	for _, hybrid := range []*brokenBackend{{}, {block: true}} {
		a := New(&bagOfWords{}, NewSelector(hybrid, 20*time.Millisecond, nil), nil, testConfig(), nil)
		res, err := a.Analyze(context.Background(), "alpha", set)
		require.NoError(t, err)

		assert.Equal(t, CosineName, res.Backend)
		if !hybrid.block {
			assert.EqualValues(t, 1, hybrid.calls.Load())
		}
		require.NotEmpty(t, res.Ranked)
		for _, rp := range res.Ranked {
			assert.GreaterOrEqual(t, rp.RelevanceScore, 0.0)
			assert.LessOrEqual(t, rp.RelevanceScore, 1.0)
		}
	}
}

func TestAnalyzeExcludesUnembeddablePapers(t *testing.T) {
	set := paperSet("good one", "poison pill", "good two", "good three")
	emb := &bagOfWords{}
	res, err := New(emb, nil, nil, testConfig(), nil).Analyze(context.Background(), "good", set)
	require.NoError(t, err)

	assert.Equal(t, []string{"arxiv:1"}, res.Unembedded)
	assert.Len(t, res.Ranked, 3)
	for _, rp := range res.Ranked {
		assert.NotEqual(t, "arxiv:1", rp.ID)
	}
}

func TestAnalyzeFailsWhenNothingEmbeds(t *testing.T) {
	emb := &bagOfWords{}
	emb.failAll.Store(true)
	_, err := New(emb, nil, nil, testConfig(), nil).
		Analyze(context.Background(), "q", paperSet("a", "b"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrAnalysis))
	assert.True(t, errors.Is(err, types.ErrProvider))
}

func TestAnalyzeFailsWhenEveryPaperFails(t *testing.T) {
	_, err := New(&bagOfWords{}, nil, nil, testConfig(), nil).
		Analyze(context.Background(), "q", paperSet("poison a", "poison b", "poison c", "poison d"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrAnalysis))
	assert.Contains(t, err.Error(), "all 4 papers")
}

func TestAnalyzeEmptySet(t *testing.T) {
	_, err := New(&bagOfWords{}, nil, nil, testConfig(), nil).
		Analyze(context.Background(), "q", types.NewPaperSet())
	assert.True(t, errors.Is(err, types.ErrAnalysis))
}

func TestAnalyzeTopK(t *testing.T) {
	var abstracts []string
	for i := 0; i < 15; i++ {
		abstracts = append(abstracts, fmt.Sprintf("topic %d words", i))
	}
	cfg := testConfig()
	cfg.Rank.TopK = 5
	res, err := New(&bagOfWords{}, nil, nil, cfg, nil).Analyze(context.Background(), "topic", paperSet(abstracts...))
	require.NoError(t, err)
	assert.Len(t, res.Ranked, 5)
	assert.Equal(t, 15, res.Scored)
}

func TestAnalyzeUsesTitleWithoutAbstract(t *testing.T) {
	set := types.NewPaperSet()
	set.Add(types.Paper{ID: "pubmed:1", Title: "Clinical outcomes of statins"})
	set.Add(types.Paper{ID: "pubmed:2", Title: "Unrelated", Abstract: "weather models"})
	res, err := New(&bagOfWords{}, nil, nil, testConfig(), nil).
		Analyze(context.Background(), "clinical outcomes of statins", set)
	require.NoError(t, err)
	assert.Equal(t, "pubmed:1", res.Ranked[0].ID)
}

var topicAbstracts = []string{
	"quantum error correction codes",
	"quantum error correction thresholds",
	"quantum error correction decoders",
	"protein folding structure prediction",
	"protein folding structure dynamics",
	"protein folding structure design",
	"galaxy formation dark matter",
	"galaxy formation dark energy",
	"galaxy formation dark halos",
}

func TestAnalyzeThemes(t *testing.T) {
	set := paperSet(topicAbstracts...)
	res, err := New(&bagOfWords{}, nil, namer("Shared Topic"), testConfig(), nil).
		Analyze(context.Background(), "quantum protein galaxy", set)
	require.NoError(t, err)

	require.NotEmpty(t, res.Themes)
	assert.LessOrEqual(t, len(res.Themes), 3)

	ranked := map[string]float64{}
	for _, rp := range res.Ranked {
		ranked[rp.ID] = rp.RelevanceScore
	}
	members := 0
	for i, th := range res.Themes {
		assert.Equal(t, "Shared Topic", th.Name)
		assert.Equal(t, "Shared topic.", th.Description)
		require.NotEmpty(t, th.MemberPaperIDs)

		var sum float64
		for _, id := range th.MemberPaperIDs {
			score, ok := ranked[id]
			assert.True(t, ok, "member %s is a ranked paper", id)
			sum += score
		}
		members += len(th.MemberPaperIDs)
		assert.InDelta(t, sum/float64(len(th.MemberPaperIDs)), th.RelevanceScore, 1e-9)
		assert.GreaterOrEqual(t, th.RelevanceScore, 0.0)
		assert.LessOrEqual(t, th.RelevanceScore, 1.0)
		if i > 0 {
			assert.LessOrEqual(t, th.RelevanceScore, res.Themes[i-1].RelevanceScore)
		}
	}
	assert.LessOrEqual(t, members, len(res.Ranked))
}

func TestAnalyzeThemeNamingFallback(t *testing.T) {
	set := paperSet(topicAbstracts...)
	res, err := New(&bagOfWords{}, nil, failingGen(), testConfig(), nil).
		Analyze(context.Background(), "quantum", set)
	require.NoError(t, err)
	require.NotEmpty(t, res.Themes)

	titles := map[string]string{}
	for _, rp := range res.Ranked {
		titles[rp.ID] = rp.Title
	}
	for _, th := range res.Themes {
		assert.Equal(t, titles[th.MemberPaperIDs[0]]+" and related work", th.Name)
		assert.NotEmpty(t, th.Description)
	}
}

func TestAnalyzeSkipsThemesForFewPapers(t *testing.T) {
	res, err := New(&bagOfWords{}, nil, namer("x"), testConfig(), nil).
		Analyze(context.Background(), "q", paperSet("a b", "c d", "e f"))
	require.NoError(t, err)
	assert.Len(t, res.Ranked, 3)
	assert.Empty(t, res.Themes)
}

func TestFallbackThemeName(t *testing.T) {
	assert.Equal(t, "Deep Learning and related work", fallbackThemeName("  Deep   Learning "))
	assert.Equal(t, "Related work", fallbackThemeName(""))
	long := strings.Repeat("word ", 40)
	assert.True(t, strings.HasSuffix(fallbackThemeName(long), "... and related work"))
}

func TestNewHybrid(t *testing.T) {
	cfg := types.DefaultConfig().Rank

	h, closer, err := NewHybrid(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite-hybrid", h.Name())
	assert.Nil(t, closer)

	cfg.HybridBackend = types.HybridVespa
	h, _, err = NewHybrid(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "vespa", h.Name())

	cfg.HybridBackend = types.HybridNone
	h, _, err = NewHybrid(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, h)

	cfg.HybridBackend = types.HybridPgvector
	_, _, err = NewHybrid(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "pgvector_dsn")

	cfg.HybridBackend = "elastic"
	_, _, err = NewHybrid(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "unknown hybrid backend")
}

var _ embed.Provider = (*bagOfWords)(nil)
