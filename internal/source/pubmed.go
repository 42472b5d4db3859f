// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/research-assistant/internal/httputil"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// pubmedEutilsBase is the NCBI E-utilities root. Declared as a var so tests
// can substitute an httptest server.
var pubmedEutilsBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// PubMed queries MEDLINE through NCBI E-utilities: esearch returns PMIDs in
// relevance order, efetch returns the article records for those PMIDs.
type PubMed struct {
	Client    *http.Client
	UserAgent string

	// APIKey raises the E-utilities rate limit from 3 to 10 requests/second.
	APIKey string
}

// Name returns the source identifier.
func (p *PubMed) Name() types.SourceID { return types.SourcePubMed }

// Search runs esearch followed by efetch.
func (p *PubMed) Search(ctx context.Context, keywords []string, limit int) ([]types.Paper, error) {
	term := buildPubMedTerm(keywords)
	if term == "" {
		return nil, unavailable(p.Name(), "empty query")
	}

	pmids, err := p.esearch(ctx, term, normalizeLimit(limit, 0))
	if err != nil {
		return nil, err
	}
	if len(pmids) == 0 {
		return nil, nil
	}

	articles, err := p.efetch(ctx, pmids)
	if err != nil {
		return nil, err
	}

	// efetch does not promise esearch order.
	byPMID := make(map[string]pubmedArticle, len(articles))
	for _, a := range articles {
		byPMID[a.Citation.PMID] = a
	}

	var papers []types.Paper
	for i, pmid := range pmids {
		a, ok := byPMID[pmid]
		if !ok || strings.TrimSpace(string(a.Citation.Article.Title)) == "" {
			continue
		}
		papers = append(papers, a.toPaper(positionScore(i, len(pmids))))
	}
	return papers, nil
}

func (p *PubMed) esearch(ctx context.Context, term string, limit int) ([]string, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"term":    {term},
		"retmax":  {strconv.Itoa(limit)},
		"retmode": {"json"},
		"sort":    {"relevance"},
	}
	if p.APIKey != "" {
		params.Set("api_key", p.APIKey)
	}

	req, err := newRequest(ctx, pubmedEutilsBase+"/esearch.fcgi?"+params.Encode(), p.UserAgent)
	if err != nil {
		return nil, unavailable(p.Name(), "creating esearch request: %v", err)
	}
	resp, err := httputil.DoWithRetry(ctx, p.Client, req, 0)
	if err != nil {
		return nil, unavailable(p.Name(), "esearch request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unavailable(p.Name(), "esearch HTTP %d", resp.StatusCode)
	}

	var sr pubmedSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, unavailable(p.Name(), "parsing esearch response: %v", err)
	}
	return sr.Result.IDList, nil
}

func (p *PubMed) efetch(ctx context.Context, pmids []string) ([]pubmedArticle, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(pmids, ",")},
		"retmode": {"xml"},
	}
	if p.APIKey != "" {
		params.Set("api_key", p.APIKey)
	}

	req, err := newRequest(ctx, pubmedEutilsBase+"/efetch.fcgi?"+params.Encode(), p.UserAgent)
	if err != nil {
		return nil, unavailable(p.Name(), "creating efetch request: %v", err)
	}
	resp, err := httputil.DoWithRetry(ctx, p.Client, req, 0)
	if err != nil {
		return nil, unavailable(p.Name(), "efetch request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unavailable(p.Name(), "efetch HTTP %d", resp.StatusCode)
	}

	var set pubmedArticleSet
	if err := xml.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, unavailable(p.Name(), "parsing efetch response: %v", err)
	}
	return set.Articles, nil
}

// buildPubMedTerm ORs the keywords, quoting multi-word phrases.
func buildPubMedTerm(keywords []string) string {
	var parts []string
	for _, kw := range keywords {
		kw = strings.Join(strings.Fields(kw), " ")
		if kw == "" {
			continue
		}
		if strings.Contains(kw, " ") {
			kw = `"` + kw + `"`
		}
		parts = append(parts, kw)
	}
	return strings.Join(parts, " OR ")
}

func (a pubmedArticle) toPaper(rank float64) types.Paper {
	art := a.Citation.Article
	p := types.Paper{
		ID:         types.QualifiedID(types.SourcePubMed, a.Citation.PMID),
		Title:      collapseSpace(string(art.Title)),
		Source:     types.SourcePubMed,
		URL:        "https://pubmed.ncbi.nlm.nih.gov/" + a.Citation.PMID + "/",
		SourceRank: rank,
	}

	var abstract []string
	for _, t := range art.Abstract.Texts {
		if s := collapseSpace(string(t.Text)); s != "" {
			abstract = append(abstract, s)
		}
	}
	p.Abstract = strings.Join(abstract, " ")

	for _, au := range art.Authors {
		switch {
		case au.CollectiveName != "":
			p.Authors = append(p.Authors, au.CollectiveName)
		case au.LastName != "":
			p.Authors = append(p.Authors, strings.TrimSpace(au.ForeName+" "+au.LastName))
		}
	}

	for _, id := range a.Data.ArticleIDs {
		if id.IDType == "pmc" && id.Value != "" {
			p.PDFURL = "https://www.ncbi.nlm.nih.gov/pmc/articles/" + id.Value + "/pdf/"
		}
	}

	p.PublishedDate = art.Journal.Issue.PubDate.parse()
	return p
}

// parse reads the structured Year/Month/Day fields, falling back to the
// leading year of a free-form MedlineDate such as "2019 Nov-Dec".
func (d pubmedDate) parse() time.Time {
	year, err := strconv.Atoi(strings.TrimSpace(d.Year))
	if err != nil {
		md := strings.TrimSpace(d.MedlineDate)
		if len(md) < 4 {
			return time.Time{}
		}
		if year, err = strconv.Atoi(md[:4]); err != nil {
			return time.Time{}
		}
		return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	month := time.January
	if m := strings.TrimSpace(d.Month); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n >= 1 && n <= 12 {
			month = time.Month(n)
		} else if t, err := time.Parse("Jan", m); err == nil {
			month = t.Month()
		}
	}
	day := 1
	if n, err := strconv.Atoi(strings.TrimSpace(d.Day)); err == nil && n >= 1 && n <= 31 {
		day = n
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// E-utilities JSON and XML structures.
type pubmedSearchResponse struct {
	Result struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation pubmedCitation `xml:"MedlineCitation"`
	Data     pubmedData     `xml:"PubmedData"`
}

type pubmedCitation struct {
	PMID    string         `xml:"PMID"`
	Article pubmedArticleT `xml:"Article"`
}

type pubmedArticleT struct {
	Title    pubmedText     `xml:"ArticleTitle"`
	Abstract pubmedAbstract `xml:"Abstract"`
	Authors  []pubmedAuthor `xml:"AuthorList>Author"`
	Journal  pubmedJournal  `xml:"Journal"`
}

type pubmedAbstract struct {
	Texts []pubmedAbstractText `xml:"AbstractText"`
}

type pubmedAbstractText struct {
	Label string
	Text  pubmedText
}

func (a *pubmedAbstractText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "Label" {
			a.Label = attr.Value
		}
	}
	return a.Text.UnmarshalXML(d, start)
}

type pubmedAuthor struct {
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	CollectiveName string `xml:"CollectiveName"`
}

type pubmedJournal struct {
	Issue struct {
		PubDate pubmedDate `xml:"PubDate"`
	} `xml:"JournalIssue"`
}

type pubmedDate struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	MedlineDate string `xml:"MedlineDate"`
}

type pubmedData struct {
	ArticleIDs []pubmedArticleID `xml:"ArticleIdList>ArticleId"`
}

type pubmedArticleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}

// pubmedText is element text with inline markup such as <i>, <sup> and <sub>
// flattened away. A ",chardata" field would drop the text inside those tags.
type pubmedText string

func (t *pubmedText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.Write(tok)
		}
	}
	*t = pubmedText(b.String())
	return nil
}
