// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/research-assistant/internal/httputil"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,authors,externalIds,year,publicationDate,url,openAccessPdf"

// semanticMaxLimit is the largest page the search endpoint accepts.
const semanticMaxLimit = 100

// SemanticScholar queries the Semantic Scholar Graph API.
type SemanticScholar struct {
	Client    *http.Client
	UserAgent string
	APIKey    string
}

// Name returns the source identifier.
func (s *SemanticScholar) Name() types.SourceID { return types.SourceSemanticScholar }

// Search queries Semantic Scholar. Papers without a title are skipped.
func (s *SemanticScholar) Search(ctx context.Context, keywords []string, limit int) ([]types.Paper, error) {
	q := strings.TrimSpace(strings.Join(keywords, " "))
	if q == "" {
		return nil, unavailable(s.Name(), "empty query")
	}

	params := url.Values{
		"query":  {q},
		"limit":  {strconv.Itoa(normalizeLimit(limit, semanticMaxLimit))},
		"fields": {semanticFields},
	}

	req, err := newRequest(ctx, semanticAPIBase+"?"+params.Encode(), s.UserAgent)
	if err != nil {
		return nil, unavailable(s.Name(), "creating request: %v", err)
	}
	if s.APIKey != "" {
		req.Header.Set("x-api-key", s.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, s.Client, req, 0)
	if err != nil {
		return nil, unavailable(s.Name(), "request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unavailable(s.Name(), "HTTP %d", resp.StatusCode)
	}

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, unavailable(s.Name(), "parsing response: %v", err)
	}

	total := len(sr.Data)
	var papers []types.Paper
	for i, sp := range sr.Data {
		if sp.PaperID == "" || strings.TrimSpace(sp.Title) == "" {
			continue
		}
		p := types.Paper{
			ID:         types.QualifiedID(types.SourceSemanticScholar, sp.PaperID),
			Title:      strings.TrimSpace(sp.Title),
			Abstract:   strings.TrimSpace(sp.Abstract),
			Source:     types.SourceSemanticScholar,
			URL:        sp.URL,
			SourceRank: positionScore(i, total),
		}
		for _, a := range sp.Authors {
			p.Authors = append(p.Authors, a.Name)
		}
		if sp.OpenAccessPDF != nil {
			p.PDFURL = sp.OpenAccessPDF.URL
		}
		if p.PDFURL == "" && sp.ExternalIDs.ArXiv != "" {
			p.PDFURL = "https://arxiv.org/pdf/" + sp.ExternalIDs.ArXiv
		}

		if sp.PublicationDate != "" {
			if t, parseErr := time.Parse("2006-01-02", sp.PublicationDate); parseErr == nil {
				p.PublishedDate = t
			}
		} else if sp.Year > 0 {
			p.PublishedDate = time.Date(sp.Year, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Data   []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID         string              `json:"paperId"`
	Title           string              `json:"title"`
	Abstract        string              `json:"abstract"`
	Year            int                 `json:"year"`
	PublicationDate string              `json:"publicationDate"`
	URL             string              `json:"url"`
	Authors         []semanticAuthor    `json:"authors"`
	ExternalIDs     semanticExternalIDs `json:"externalIds"`
	OpenAccessPDF   *semanticPDF        `json:"openAccessPdf"`
}

type semanticAuthor struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type semanticExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}

type semanticPDF struct {
	URL string `json:"url"`
}
