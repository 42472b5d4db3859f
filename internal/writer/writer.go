// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package writer synthesizes the final Markdown report from ranked papers
// and themes. Citations are formatted deterministically and do not depend on
// the generation call; the narrative is generated once, with one retry on a
// shortened prompt.
package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/pkg/types"
)

const topPapers = 5

var reportPromptTmpl = template.Must(template.New("report").Parse(`You are an expert research analyst. Write a comprehensive research report in Markdown answering the query below, based only on the papers provided.

Research query: "{{.Query}}"
Papers analyzed: {{.PaperCount}}

Structure the report as:
# Research Report: <concise title>
## Executive Summary
## Introduction
{{- if .Themes}}
## Key Findings (one ### subsection per theme below)
{{- else}}
## Key Findings
{{- end}}
## Methodology and Limitations
## Conclusion
## References

Cite papers inline with their bracketed numbers, for example [1] or [2, 4]. Use only the numbers listed below.
{{if .Themes}}
Themes:
{{range .Themes}}
### {{.Name}}
{{.Description}}
Papers: {{range $i, $n := .Papers}}{{if $i}}, {{end}}[{{$n}}]{{end}}
{{end}}{{end}}
Papers:
{{range .Papers}}
[{{.N}}] {{.Title}}
Authors: {{.Authors}}
Source: {{.Source}} | Year: {{.Year}} | Relevance: {{.Relevance}}
Abstract: {{.Abstract}}
{{end}}
References (copy this list verbatim into the References section):
{{range .Citations}}{{.}}
{{end}}`))

type paperView struct {
	N         int
	Title     string
	Authors   string
	Source    string
	Year      string
	Relevance string
	Abstract  string
}

type themeView struct {
	Name        string
	Description string
	Papers      []int
}

type promptData struct {
	Query      string
	PaperCount int
	Papers     []paperView
	Themes     []themeView
	Citations  []string
}

// Writer produces reports.
type Writer struct {
	gen    llm.Generator
	cfg    types.WriterConfig
	logger *zap.Logger
}

// New returns a writer that generates with gen.
func New(gen llm.Generator, cfg types.WriterConfig, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := types.DefaultConfig().Writer
	if cfg.AbstractWords <= 0 {
		cfg.AbstractWords = def.AbstractWords
	}
	if cfg.ShortPapers <= 0 {
		cfg.ShortPapers = def.ShortPapers
	}
	if cfg.ShortThemes <= 0 {
		cfg.ShortThemes = def.ShortThemes
	}
	if cfg.ShortAbstractWords <= 0 {
		cfg.ShortAbstractWords = def.ShortAbstractWords
	}
	return &Writer{gen: gen, cfg: cfg, logger: logger.Named("writer")}
}

// Write assembles the report for query. It fails with types.ErrWrite when
// both the full and the shortened generation attempts fail.
func (w *Writer) Write(ctx context.Context, query string, ranked []types.RankedPaper, themes []types.Theme) (types.Report, error) {
	if len(ranked) == 0 {
		return types.Report{}, fmt.Errorf("%w: no ranked papers", types.ErrWrite)
	}
	if w.gen == nil {
		return types.Report{}, fmt.Errorf("%w: no generator configured", types.ErrWrite)
	}

	citations := FormatCitations(ranked)
	numbers := make(map[string]int, len(ranked))
	for i, rp := range ranked {
		numbers[rp.ID] = i + 1
	}

	full := w.promptData(query, ranked, themes, citations, numbers, len(ranked), len(themes), w.cfg.AbstractWords)
	body, err := w.generate(ctx, full)
	if err != nil {
		w.logger.Warn("report generation failed, retrying with a shorter prompt", zap.Error(err))
		short := w.promptData(query, ranked, themes, citations, numbers,
			w.cfg.ShortPapers, w.cfg.ShortThemes, w.cfg.ShortAbstractWords)
		body, err = w.generate(ctx, short)
		if err != nil {
			return types.Report{}, fmt.Errorf("%w: %w", types.ErrWrite, err)
		}
	}

	if unknown := unknownCitations(body, len(citations)); len(unknown) > 0 {
		w.logger.Warn("report cites unknown references", zap.Ints("citations", unknown))
	}

	report := types.Report{
		Query:          query,
		PapersAnalyzed: len(ranked),
		Themes:         themes,
		Citations:      citations,
		MarkdownBody:   ensureReferences(body, citations),
		TopPapers:      ranked[:min(topPapers, len(ranked))],
		Sources:        sourcesOf(ranked),
		CreatedAt:      time.Now().UTC(),
	}
	w.logger.Info("report written",
		zap.Int("chars", len(report.MarkdownBody)),
		zap.Int("citations", len(citations)))
	return report, nil
}

func (w *Writer) generate(ctx context.Context, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := reportPromptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering report prompt: %w", err)
	}
	text, err := w.gen.Complete(ctx, buf.String(), w.cfg.MaxTokens)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("generation returned an empty report")
	}
	return text, nil
}

// promptData selects at most maxPapers papers and maxThemes themes. Theme
// paper lists only reference papers that made the cut.
func (w *Writer) promptData(query string, ranked []types.RankedPaper, themes []types.Theme,
	citations []string, numbers map[string]int, maxPapers, maxThemes, abstractWords int) promptData {
	maxPapers = min(maxPapers, len(ranked))
	data := promptData{
		Query:      query,
		PaperCount: len(ranked),
		Citations:  citations[:maxPapers],
	}
	for i, rp := range ranked[:maxPapers] {
		data.Papers = append(data.Papers, paperView{
			N:         i + 1,
			Title:     cleanTitle(rp.Title),
			Authors:   citeAuthors(rp.Authors),
			Source:    rp.Source.DisplayName(),
			Year:      citeYear(rp.Paper),
			Relevance: fmt.Sprintf("%.0f%%", rp.RelevanceScore*100),
			Abstract:  TruncateAbstract(rp.Abstract, abstractWords),
		})
	}
	for _, th := range themes[:min(maxThemes, len(themes))] {
		tv := themeView{Name: th.Name, Description: th.Description}
		for _, id := range th.MemberPaperIDs {
			if n, ok := numbers[id]; ok && n <= maxPapers {
				tv.Papers = append(tv.Papers, n)
			}
		}
		data.Themes = append(data.Themes, tv)
	}
	return data
}

// TruncateAbstract cuts abstract to maxWords words, ending at the last
// sentence boundary when that keeps at least 70% of the limit, and with an
// ellipsis otherwise.
func TruncateAbstract(abstract string, maxWords int) string {
	words := strings.Fields(abstract)
	if maxWords <= 0 || len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	words = words[:maxWords]
	for i := len(words) - 1; i+1 >= maxWords*7/10 && i >= 0; i-- {
		if endsSentence(words[i]) {
			return strings.Join(words[:i+1], " ")
		}
	}
	return strings.Join(words, " ") + "..."
}

func endsSentence(word string) bool {
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "?") || strings.HasSuffix(word, "!")
}

func sourcesOf(ranked []types.RankedPaper) []types.SourceID {
	seen := make(map[types.SourceID]bool)
	for _, rp := range ranked {
		seen[rp.Source] = true
	}
	var out []types.SourceID
	for _, s := range types.KnownSources {
		if seen[s] {
			out = append(out, s)
		}
	}
	return out
}
