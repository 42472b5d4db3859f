// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/research-assistant/internal/httputil"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// Arxiv queries the arXiv Atom API.
type Arxiv struct {
	Client    *http.Client
	UserAgent string
}

// Name returns the source identifier.
func (a *Arxiv) Name() types.SourceID { return types.SourceArxiv }

// Search queries arXiv sorted by relevance.
func (a *Arxiv) Search(ctx context.Context, keywords []string, limit int) ([]types.Paper, error) {
	q := buildArxivQuery(keywords)
	if q == "" {
		return nil, unavailable(a.Name(), "empty query")
	}

	params := url.Values{
		"search_query": {q},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(normalizeLimit(limit, 0))},
		"sortBy":       {"relevance"},
		"sortOrder":    {"descending"},
	}

	req, err := newRequest(ctx, arxivAPIBase+"?"+params.Encode(), a.UserAgent)
	if err != nil {
		return nil, unavailable(a.Name(), "creating request: %v", err)
	}

	resp, err := httputil.DoWithRetry(ctx, a.Client, req, 0)
	if err != nil {
		return nil, unavailable(a.Name(), "request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unavailable(a.Name(), "HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, unavailable(a.Name(), "parsing response: %v", err)
	}

	total := len(feed.Entries)
	var papers []types.Paper
	for i, entry := range feed.Entries {
		arxivID := extractArxivID(entry.ID)
		if arxivID == "" {
			continue
		}

		p := types.Paper{
			ID:         types.QualifiedID(types.SourceArxiv, arxivID),
			Title:      collapseSpace(entry.Title),
			Abstract:   collapseSpace(entry.Summary),
			Source:     types.SourceArxiv,
			URL:        "https://arxiv.org/abs/" + arxivID,
			SourceRank: positionScore(i, total),
		}
		for _, au := range entry.Authors {
			p.Authors = append(p.Authors, strings.TrimSpace(au.Name))
		}
		for _, l := range entry.Links {
			if l.Title == "pdf" || l.Type == "application/pdf" {
				p.PDFURL = l.Href
			}
		}
		if t, parseErr := time.Parse(time.RFC3339, entry.Published); parseErr == nil {
			p.PublishedDate = t
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// buildArxivQuery turns each keyword into a phrase match over all fields and
// ORs them together.
func buildArxivQuery(keywords []string) string {
	var parts []string
	for _, kw := range keywords {
		terms := strings.Fields(kw)
		switch len(terms) {
		case 0:
			continue
		case 1:
			parts = append(parts, "all:"+terms[0])
		default:
			parts = append(parts, `all:"`+strings.Join(terms, " ")+`"`)
		}
	}
	return strings.Join(parts, " OR ")
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []arxivAuthor `xml:"author"`
	Links     []arxivLink   `xml:"link"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" becomes "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}

// collapseSpace joins the whitespace-separated fields of s with single
// spaces. arXiv wraps titles and summaries across lines.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
