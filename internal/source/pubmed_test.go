// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// efetch deliberately returns the articles out of esearch order.
const pubmedEfetchXML = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>222</PMID>
      <Article>
        <Journal><JournalIssue><PubDate><MedlineDate>2019 Nov-Dec</MedlineDate></PubDate></JournalIssue></Journal>
        <ArticleTitle>Second article</ArticleTitle>
        <AuthorList><Author><CollectiveName>CRISPR Consortium</CollectiveName></Author></AuthorList>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>111</PMID>
      <Article>
        <Journal><JournalIssue><PubDate><Year>2021</Year><Month>Mar</Month><Day>5</Day></PubDate></JournalIssue></Journal>
        <ArticleTitle>Gene editing in vivo</ArticleTitle>
        <Abstract>
          <AbstractText Label="BACKGROUND">Editing genes.</AbstractText>
          <AbstractText Label="RESULTS">It works.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author><LastName>Doudna</LastName><ForeName>Jennifer</ForeName></Author>
          <Author><LastName>Zhang</LastName><ForeName>Feng</ForeName></Author>
        </AuthorList>
      </Article>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">111</ArticleId>
        <ArticleId IdType="pmc">PMC123</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
</PubmedArticleSet>`

func withPubMedServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	old := pubmedEutilsBase
	pubmedEutilsBase = ts.URL
	t.Cleanup(func() { pubmedEutilsBase = old })
	return ts
}

func TestPubMedSearch(t *testing.T) {
	var searchTerm, fetchIDs, apiKey string
	ts := withPubMedServer(t, func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.URL.Query().Get("api_key")
		switch {
		case strings.HasSuffix(r.URL.Path, "/esearch.fcgi"):
			searchTerm = r.URL.Query().Get("term")
			fmt.Fprint(w, `{"esearchresult":{"count":"3","idlist":["111","222","333"]}}`)
		case strings.HasSuffix(r.URL.Path, "/efetch.fcgi"):
			fetchIDs = r.URL.Query().Get("id")
			fmt.Fprint(w, pubmedEfetchXML)
		default:
			http.NotFound(w, r)
		}
	})

	p := &PubMed{Client: ts.Client(), APIKey: "ncbi-key"}
	papers, err := p.Search(context.Background(), []string{"gene editing", "CRISPR"}, 3)
	require.NoError(t, err)

	assert.Equal(t, `"gene editing" OR CRISPR`, searchTerm)
	assert.Equal(t, "111,222,333", fetchIDs)
	assert.Equal(t, "ncbi-key", apiKey)

	require.Len(t, papers, 2, "pmid 333 has no record")
	first := papers[0]
	assert.Equal(t, "pubmed:111", first.ID)
	assert.Equal(t, "Gene editing in vivo", first.Title)
	assert.Equal(t, "Editing genes. It works.", first.Abstract)
	assert.Equal(t, []string{"Jennifer Doudna", "Feng Zhang"}, first.Authors)
	assert.Equal(t, time.Date(2021, time.March, 5, 0, 0, 0, 0, time.UTC), first.PublishedDate)
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/111/", first.URL)
	assert.Equal(t, "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC123/pdf/", first.PDFURL)
	assert.Equal(t, 1.0, first.SourceRank)

	second := papers[1]
	assert.Equal(t, "pubmed:222", second.ID)
	assert.Equal(t, []string{"CRISPR Consortium"}, second.Authors)
	assert.Equal(t, 2019, second.Year())
	assert.InDelta(t, 0.55, second.SourceRank, 1e-9)
}

func TestPubMedKeepsInlineMarkupText(t *testing.T) {
	ts := withPubMedServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/esearch.fcgi"):
			fmt.Fprint(w, `{"esearchresult":{"idlist":["444"]}}`)
		default:
			fmt.Fprint(w, `<PubmedArticleSet><PubmedArticle><MedlineCitation>
  <PMID>444</PMID>
  <Article>
    <ArticleTitle>Role of <i>Escherichia coli</i> in CO<sub>2</sub> fixation</ArticleTitle>
    <Abstract>
      <AbstractText Label="METHODS">Cells grew at 10<sup>6</sup> per <b>m<i>L</i></b>.</AbstractText>
      <AbstractText><i>In vivo</i> results held.</AbstractText>
    </Abstract>
  </Article>
</MedlineCitation></PubmedArticle></PubmedArticleSet>`)
		}
	})

	p := &PubMed{Client: ts.Client()}
	papers, err := p.Search(context.Background(), []string{"ecoli"}, 1)
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "Role of Escherichia coli in CO2 fixation", papers[0].Title)
	assert.Equal(t, "Cells grew at 106 per mL. In vivo results held.", papers[0].Abstract)
}

func TestPubMedSearchNoHits(t *testing.T) {
	var fetched bool
	ts := withPubMedServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/efetch.fcgi") {
			fetched = true
		}
		fmt.Fprint(w, `{"esearchresult":{"count":"0","idlist":[]}}`)
	})

	p := &PubMed{Client: ts.Client()}
	papers, err := p.Search(context.Background(), []string{"nothing"}, 3)
	require.NoError(t, err)
	assert.Empty(t, papers)
	assert.False(t, fetched, "efetch is skipped when esearch finds nothing")
}

func TestPubMedSearchEfetchFailure(t *testing.T) {
	ts := withPubMedServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/efetch.fcgi") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"esearchresult":{"idlist":["1"]}}`)
	})

	p := &PubMed{Client: ts.Client()}
	_, err := p.Search(context.Background(), []string{"x"}, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrSourceUnavailable))
	assert.Contains(t, err.Error(), "efetch HTTP 500")
}

func TestPubMedDateParse(t *testing.T) {
	tests := []struct {
		name string
		in   pubmedDate
		want time.Time
	}{
		{"numeric month", pubmedDate{Year: "2020", Month: "07", Day: "14"}, time.Date(2020, 7, 14, 0, 0, 0, 0, time.UTC)},
		{"year only", pubmedDate{Year: "2018"}, time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"medline date", pubmedDate{MedlineDate: "2015 Spring"}, time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"unknown", pubmedDate{}, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.parse())
		})
	}
}
