// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/pkg/types"
)

const (
	themeAbstractChars = 250
	themeNameWorkers   = 4
)

var themePromptTmpl = template.Must(template.New("theme").Funcs(template.FuncMap{
	"inc":     func(i int) int { return i + 1 },
	"excerpt": excerpt,
}).Parse(`Analyze these {{len .Papers}} papers and identify the common theme.

Research query: "{{.Query}}"

Papers:
{{range $i, $p := .Papers}}
[{{inc $i}}] {{$p.Title}}
Abstract: {{excerpt $p.Abstract}}
{{end}}
Return a JSON object with exactly this structure:
{"name": "2-4 word theme name", "description": "1-2 sentence description of what unites these papers"}

Focus on what makes these papers similar (domain, methodology, application). Do not include any text outside the JSON object.
`))

type themeResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// extractThemes clusters ranked papers by embedding and names each cluster.
// Fewer than cfg.MinPapers papers yield no themes.
func (a *Analyzer) extractThemes(ctx context.Context, query string, ranked []types.RankedPaper) []types.Theme {
	cfg := a.cfg.Themes
	if len(ranked) < max(cfg.MinPapers, 1) {
		a.logger.Debug("too few papers to cluster", zap.Int("papers", len(ranked)))
		return nil
	}

	points := make([][]float32, len(ranked))
	for i, rp := range ranked {
		points[i] = rp.Embedding
	}
	k := clusterCount(len(ranked), cfg.MinClusters, cfg.MaxClusters)
	groups := kmeans(points, k, cfg.MaxIterations, cfg.Seed)

	themes := make([]types.Theme, len(groups))
	var g errgroup.Group
	g.SetLimit(themeNameWorkers)
	for i, members := range groups {
		papers := make([]types.RankedPaper, len(members))
		for j, m := range members {
			papers[j] = ranked[m]
		}
		g.Go(func() error {
			themes[i] = a.buildTheme(ctx, query, papers)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortStableFunc(themes, func(x, y types.Theme) int {
		switch {
		case x.RelevanceScore > y.RelevanceScore:
			return -1
		case x.RelevanceScore < y.RelevanceScore:
			return 1
		}
		return 0
	})
	return themes
}

// buildTheme names one cluster. members are in rank order, so the first is
// the highest-scoring paper.
func (a *Analyzer) buildTheme(ctx context.Context, query string, members []types.RankedPaper) types.Theme {
	ids := make([]string, len(members))
	var sum float64
	for i, m := range members {
		ids[i] = m.ID
		sum += m.RelevanceScore
	}
	theme := types.Theme{
		RelevanceScore: clamp01(sum / float64(len(members))),
		MemberPaperIDs: ids,
	}

	name, desc, err := a.nameTheme(ctx, query, members)
	if err != nil {
		a.logger.Warn("theme naming failed, deriving name from top paper", zap.Error(err))
		name = fallbackThemeName(members[0].Title)
		desc = fmt.Sprintf("%d papers on aspects of %s related to %q.", len(members), query, members[0].Title)
	}
	theme.Name, theme.Description = name, desc
	return theme
}

func (a *Analyzer) nameTheme(ctx context.Context, query string, members []types.RankedPaper) (string, string, error) {
	if a.gen == nil {
		return "", "", fmt.Errorf("no generator configured")
	}
	var buf bytes.Buffer
	if err := themePromptTmpl.Execute(&buf, struct {
		Query  string
		Papers []types.RankedPaper
	}{query, members}); err != nil {
		return "", "", fmt.Errorf("rendering theme prompt: %w", err)
	}

	text, err := a.gen.Complete(ctx, buf.String(), a.cfg.Themes.NameMaxTokens)
	if err != nil {
		return "", "", err
	}
	var resp themeResponse
	if err := llm.DecodeJSON(text, &resp); err != nil {
		return "", "", fmt.Errorf("parsing theme response: %w", err)
	}
	name := strings.TrimSpace(resp.Name)
	if name == "" {
		return "", "", fmt.Errorf("theme response has no name")
	}
	return name, strings.TrimSpace(resp.Description), nil
}

func fallbackThemeName(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return "Related work"
	}
	if r := []rune(title); len(r) > 80 {
		title = strings.TrimSpace(string(r[:80])) + "..."
	}
	return title + " and related work"
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > themeAbstractChars {
		return string(r[:themeAbstractChars]) + "..."
	}
	return s
}
