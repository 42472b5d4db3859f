// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/pkg/types"
)

func ranked(n int) []types.RankedPaper {
	out := make([]types.RankedPaper, n)
	for i := range out {
		out[i] = types.RankedPaper{
			Paper: types.Paper{
				ID:            fmt.Sprintf("arxiv:%d", i),
				Title:         fmt.Sprintf("Paper %d", i),
				Abstract:      fmt.Sprintf("Abstract of paper %d. It has two sentences.", i),
				Authors:       []string{"Ada Lovelace"},
				Source:        types.SourceArxiv,
				URL:           fmt.Sprintf("https://arxiv.org/abs/%d", i),
				PublishedDate: time.Date(2020+i%4, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			RelevanceScore: 1 - float64(i)*0.05,
			FetchIndex:     i,
		}
	}
	return out
}

// scripted returns replies in order and records the prompts it saw.
type scripted struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
}

type reply struct {
	text string
	err  error
}

func (s *scripted) Complete(_ context.Context, prompt string, _ int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "", fmt.Errorf("%w: no reply scripted", types.ErrGeneration)
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.text, r.err
}

func TestFormatCitation(t *testing.T) {
	tests := []struct {
		name  string
		paper types.Paper
		want  string
	}{
		{
			name: "full",
			paper: types.Paper{
				Title: "Attention Is All You Need", Authors: []string{"A. Vaswani", "N. Shazeer"},
				Source: types.SourceArxiv, URL: "https://arxiv.org/abs/1706.03762",
				PublishedDate: time.Date(2017, 6, 12, 0, 0, 0, 0, time.UTC),
			},
			want: `[1] A. Vaswani, N. Shazeer (2017). "Attention Is All You Need". arXiv. https://arxiv.org/abs/1706.03762`,
		},
		{
			name: "many authors no date pdf only",
			paper: types.Paper{
				Title: "Big Collaboration.", Authors: []string{"A", "B", "C", "D"},
				Source: types.SourceSemanticScholar, PDFURL: "https://example.org/p.pdf",
			},
			want: `[1] A, B, C et al. (n.d.). "Big Collaboration". Semantic Scholar. https://example.org/p.pdf`,
		},
		{
			name:  "no authors no url",
			paper: types.Paper{Title: "Orphan", Source: types.SourcePubMed},
			want:  `[1] Unknown (n.d.). "Orphan". PubMed.`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCitation(1, tt.paper))
		})
	}
}

func TestFormatCitationsNumberByRank(t *testing.T) {
	cites := FormatCitations(ranked(3))
	require.Len(t, cites, 3)
	for i, c := range cites {
		assert.True(t, strings.HasPrefix(c, fmt.Sprintf("[%d] ", i+1)))
		assert.Contains(t, c, fmt.Sprintf(`"Paper %d"`, i))
	}
}

func TestWrite(t *testing.T) {
	gen := &scripted{replies: []reply{{text: "# Research Report: X\n\n## Executive Summary\nFindings [1] and [2, 3].\n"}}}
	themes := []types.Theme{{Name: "Alpha", Description: "About alpha.", MemberPaperIDs: []string{"arxiv:0", "arxiv:2"}}}

	w := New(gen, types.DefaultConfig().Writer, zap.NewNop())
	report, err := w.Write(context.Background(), "q", ranked(8), themes)
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, `Research query: "q"`)
	assert.Contains(t, prompt, "### Alpha")
	assert.Contains(t, prompt, "Papers: [1], [3]")
	assert.Contains(t, prompt, "[8] Paper 7")

	assert.Equal(t, "q", report.Query)
	assert.Equal(t, 8, report.PapersAnalyzed)
	assert.Len(t, report.Citations, 8)
	assert.Equal(t, themes, report.Themes)
	assert.Len(t, report.TopPapers, 5)
	assert.Equal(t, []types.SourceID{types.SourceArxiv}, report.Sources)
	assert.Contains(t, report.MarkdownBody, "## References")
	assert.Contains(t, report.MarkdownBody, report.Citations[7])
}

func TestWriteKeepsGeneratedReferences(t *testing.T) {
	body := "# Report\n\n## References\n[1] as written by the model\n"
	gen := &scripted{replies: []reply{{text: body}}}
	report, err := New(gen, types.WriterConfig{}, nil).Write(context.Background(), "q", ranked(2), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(report.MarkdownBody, "## References"))
	assert.Equal(t, body, report.MarkdownBody)
}

func TestWriteRetriesWithShortPrompt(t *testing.T) {
	gen := &scripted{replies: []reply{
		{err: fmt.Errorf("%w: context too long", types.ErrGeneration)},
		{text: "# Short report"},
	}}
	themes := []types.Theme{
		{Name: "T1", MemberPaperIDs: []string{"arxiv:0"}},
		{Name: "T2", MemberPaperIDs: []string{"arxiv:1"}},
		{Name: "T3", MemberPaperIDs: []string{"arxiv:2"}},
	}
	cfg := types.DefaultConfig().Writer
	report, err := New(gen, cfg, nil).Write(context.Background(), "q", ranked(10), themes)
	require.NoError(t, err)

	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[0], "[10] Paper 9")
	assert.Contains(t, gen.prompts[0], "### T3")
	assert.NotContains(t, gen.prompts[1], "[6] Paper 5")
	assert.NotContains(t, gen.prompts[1], "### T3")
	assert.Contains(t, gen.prompts[1], "### T2")
	assert.Less(t, len(gen.prompts[1]), len(gen.prompts[0]))

	assert.Len(t, report.Citations, 10, "citations cover every ranked paper after a retry")
	assert.True(t, strings.HasPrefix(report.MarkdownBody, "# Short report"))
}

func TestWriteFailsAfterRetry(t *testing.T) {
	gen := &scripted{replies: []reply{
		{err: fmt.Errorf("%w: timeout", types.ErrGeneration)},
		{text: "   "},
	}}
	_, err := New(gen, types.WriterConfig{}, nil).Write(context.Background(), "q", ranked(3), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrWrite))
	assert.Len(t, gen.prompts, 2)
}

func TestWriteRejectsEmptyInput(t *testing.T) {
	_, err := New(&scripted{}, types.WriterConfig{}, nil).Write(context.Background(), "q", nil, nil)
	assert.True(t, errors.Is(err, types.ErrWrite))

	_, err = New(nil, types.WriterConfig{}, nil).Write(context.Background(), "q", ranked(1), nil)
	assert.True(t, errors.Is(err, types.ErrWrite))
}

func TestTruncateAbstract(t *testing.T) {
	tests := []struct {
		name     string
		abstract string
		max      int
		want     string
	}{
		{"short", "One  two three.", 10, "One two three."},
		{"sentence boundary", "a b c d e f g. h i j k l", 10, "a b c d e f g."},
		{"boundary too early", "a b. c d e f g h i j k l", 10, "a b. c d e f g h i j..."},
		{"no limit", "a b c", 0, "a b c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateAbstract(tt.abstract, tt.max))
		})
	}
}

func TestEnsureReferences(t *testing.T) {
	cites := []string{"[1] A (2020). \"T\". arXiv."}
	assert.Equal(t, "# R\n\n## References\n\n[1] A (2020). \"T\". arXiv.\n", ensureReferences("# R\n", cites))
	assert.Equal(t, "# R\n### Bibliography\nx\n", ensureReferences("# R\n### Bibliography\nx", cites))
	assert.Equal(t, "# R\n", ensureReferences("# R", nil))
}

func TestUnknownCitations(t *testing.T) {
	assert.Equal(t, []int{0, 7, 9}, unknownCitations("see [1], [7], [2; 9] and [0] and [7]", 5))
	assert.Empty(t, unknownCitations("see [1, 2] and [link](x)", 5))
}

var _ llm.Generator = (*scripted)(nil)
