// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package planner turns a free-text research query into a SearchPlan. A
// language model proposes keywords and sources; when it fails or answers
// with something unusable the planner falls back to a deterministic plan, so
// the only error Plan returns is for invalid input.
package planner

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/pkg/types"
)

const (
	minKeywords = 2
	maxKeywords = 6
)

var planPromptTmpl = template.Must(template.New("plan").Parse(`You are a research planning expert. Given a research query, create a structured search plan for academic databases.

Research query: "{{.Query}}"

Return a JSON object with exactly these fields:
- "keywords": 2 to 6 specific search keywords or short phrases, most important first. Use technical terms, not generic ones.
- "sources": the databases to query, chosen from: {{range $i, $s := .Sources}}{{if $i}}, {{end}}"{{$s}}"{{end}}. Prefer arxiv for computer science and physics, pubmed for biomedical topics.
- "max_papers": how many papers to fetch, between 1 and {{.MaxPapers}}. Use fewer for niche topics.

Do not include any text outside the JSON object.

Example response:
{"keywords": ["transformer attention", "self-attention", "multi-head attention"], "sources": ["arxiv", "semantic_scholar"], "max_papers": {{.DefaultPapers}}}
`))

// Planner produces search plans.
type Planner struct {
	gen     llm.Generator
	enabled []types.SourceID
	cfg     types.PlannerConfig
	logger  *zap.Logger
}

// New returns a planner that chooses among the enabled sources. A nil
// generator makes every plan the fallback plan.
func New(gen llm.Generator, enabled []types.SourceID, cfg types.PlannerConfig, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultMaxPapers <= 0 {
		cfg.DefaultMaxPapers = types.DefaultConfig().Planner.DefaultMaxPapers
	}
	if len(enabled) == 0 {
		enabled = types.KnownSources
	}
	return &Planner{
		gen:     gen,
		enabled: canonicalSources(enabled, nil),
		cfg:     cfg,
		logger:  logger.Named("planner"),
	}
}

// planResponse is the JSON the model is asked to return.
type planResponse struct {
	Keywords  []string `json:"keywords"`
	Sources   []string `json:"sources"`
	MaxPapers int      `json:"max_papers"`
}

// Plan builds a SearchPlan for query. It fails only with types.ErrInvalidInput.
func (p *Planner) Plan(ctx context.Context, query string) (types.SearchPlan, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return types.SearchPlan{}, fmt.Errorf("%w: query is empty", types.ErrInvalidInput)
	}
	if p.gen == nil {
		return p.Fallback(query), nil
	}

	prompt, err := p.renderPrompt(query)
	if err != nil {
		p.logger.Warn("rendering plan prompt, using fallback", zap.Error(err))
		return p.Fallback(query), nil
	}

	text, err := p.gen.Complete(ctx, prompt, p.cfg.MaxTokens)
	if err != nil {
		p.logger.Warn("plan generation failed, using fallback", zap.Error(err))
		return p.Fallback(query), nil
	}

	plan, err := p.parse(text)
	if err != nil {
		p.logger.Warn("unusable plan response, using fallback", zap.Error(err))
		return p.Fallback(query), nil
	}
	p.logger.Debug("planned",
		zap.Strings("keywords", plan.Keywords),
		zap.Int("sources", len(plan.Sources)),
		zap.Int("max_papers", plan.MaxPapers),
	)
	return plan, nil
}

// Fallback returns the deterministic plan: the whole query as one keyword,
// every enabled source, and the default paper budget.
func (p *Planner) Fallback(query string) types.SearchPlan {
	return types.SearchPlan{
		Keywords:  []string{strings.Join(strings.Fields(query), " ")},
		Sources:   append([]types.SourceID(nil), p.enabled...),
		MaxPapers: p.cfg.DefaultMaxPapers,
	}
}

func (p *Planner) renderPrompt(query string) (string, error) {
	var buf bytes.Buffer
	err := planPromptTmpl.Execute(&buf, struct {
		Query         string
		Sources       []types.SourceID
		MaxPapers     int
		DefaultPapers int
	}{
		Query:         query,
		Sources:       p.enabled,
		MaxPapers:     p.maxPapersCap(),
		DefaultPapers: p.cfg.DefaultMaxPapers,
	})
	return buf.String(), err
}

func (p *Planner) parse(text string) (types.SearchPlan, error) {
	var resp planResponse
	if err := llm.DecodeJSON(text, &resp); err != nil {
		return types.SearchPlan{}, err
	}

	keywords := cleanKeywords(resp.Keywords)
	if len(keywords) < minKeywords {
		return types.SearchPlan{}, fmt.Errorf("got %d usable keywords, need at least %d", len(keywords), minKeywords)
	}

	var chosen []types.SourceID
	for _, s := range resp.Sources {
		chosen = append(chosen, types.SourceID(strings.ToLower(strings.TrimSpace(s))))
	}
	sources := canonicalSources(chosen, p.enabled)
	if len(sources) == 0 {
		sources = append([]types.SourceID(nil), p.enabled...)
	}
	sources = p.ensureArxiv(sources)

	maxPapers := p.cfg.DefaultMaxPapers
	if resp.MaxPapers > 0 {
		maxPapers = min(resp.MaxPapers, p.maxPapersCap())
	}

	return types.SearchPlan{Keywords: keywords, Sources: sources, MaxPapers: maxPapers}, nil
}

func (p *Planner) maxPapersCap() int {
	return 2 * p.cfg.DefaultMaxPapers
}

// ensureArxiv adds arXiv to sources when it is enabled.
func (p *Planner) ensureArxiv(sources []types.SourceID) []types.SourceID {
	for _, s := range p.enabled {
		if s == types.SourceArxiv {
			return canonicalSources(append(sources, types.SourceArxiv), nil)
		}
	}
	return sources
}

// cleanKeywords trims, collapses whitespace, drops case-insensitive
// duplicates and caps the list at maxKeywords.
func cleanKeywords(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, kw := range in {
		kw = strings.Join(strings.Fields(kw), " ")
		key := strings.ToLower(kw)
		if kw == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// canonicalSources returns the known sources in ids, without duplicates, in
// types.KnownSources order. When allowed is non-nil only ids it contains are kept.
func canonicalSources(ids []types.SourceID, allowed []types.SourceID) []types.SourceID {
	want := make(map[types.SourceID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	ok := func(id types.SourceID) bool {
		if allowed == nil {
			return true
		}
		for _, a := range allowed {
			if a == id {
				return true
			}
		}
		return false
	}

	var out []types.SourceID
	for _, k := range types.KnownSources {
		if want[k] && ok(k) {
			out = append(out, k)
		}
	}
	return out
}
