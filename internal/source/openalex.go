// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/research-assistant/internal/httputil"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

const openAlexMaxPerPage = 200

// OpenAlex queries the OpenAlex Works API.
type OpenAlex struct {
	Client    *http.Client
	UserAgent string

	// Email is sent as mailto parameter for polite pool access.
	Email string
}

// Name returns the source identifier.
func (o *OpenAlex) Name() types.SourceID { return types.SourceOpenAlex }

// Search queries OpenAlex, which sorts by relevance when a search term is given.
func (o *OpenAlex) Search(ctx context.Context, keywords []string, limit int) ([]types.Paper, error) {
	q := strings.TrimSpace(strings.Join(keywords, " "))
	if q == "" {
		return nil, unavailable(o.Name(), "empty query")
	}

	params := url.Values{
		"search":   {q},
		"per_page": {strconv.Itoa(normalizeLimit(limit, openAlexMaxPerPage))},
		"page":     {"1"},
	}
	if o.Email != "" {
		params.Set("mailto", o.Email)
	}

	req, err := newRequest(ctx, openAlexSearchBase+"?"+params.Encode(), o.UserAgent)
	if err != nil {
		return nil, unavailable(o.Name(), "creating request: %v", err)
	}

	resp, err := httputil.DoWithRetry(ctx, o.Client, req, 0)
	if err != nil {
		return nil, unavailable(o.Name(), "request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unavailable(o.Name(), "HTTP %d", resp.StatusCode)
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, unavailable(o.Name(), "parsing response: %v", err)
	}

	total := len(oar.Results)
	var papers []types.Paper
	for i, work := range oar.Results {
		localID := strings.TrimPrefix(work.ID, "https://openalex.org/")
		if localID == "" || strings.TrimSpace(work.Title) == "" {
			continue
		}
		p := types.Paper{
			ID:         types.QualifiedID(types.SourceOpenAlex, localID),
			Title:      strings.TrimSpace(work.Title),
			Abstract:   reconstructAbstract(work.AbstractInvertedIndex),
			Source:     types.SourceOpenAlex,
			URL:        work.DOI,
			PDFURL:     work.OpenAccess.OAURL,
			SourceRank: positionScore(i, total),
		}
		if p.URL == "" {
			p.URL = work.ID
		}
		for _, authorship := range work.Authorships {
			if authorship.Author.DisplayName != "" {
				p.Authors = append(p.Authors, authorship.Author.DisplayName)
			}
		}

		if work.PublicationDate != "" {
			if t, parseErr := time.Parse("2006-01-02", work.PublicationDate); parseErr == nil {
				p.PublishedDate = t
			}
		} else if work.PublicationYear > 0 {
			p.PublishedDate = time.Date(work.PublicationYear, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions
// where that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	PublicationDate       string               `json:"publication_date"`
	PublicationYear       int                  `json:"publication_year"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	OpenAccess            openAlexOpenAccess   `json:"open_access"`
}

type openAlexAuthorship struct {
	Author openAlexAuthor `json:"author"`
}

type openAlexAuthor struct {
	DisplayName string `json:"display_name"`
}

type openAlexOpenAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}
