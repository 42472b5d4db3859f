// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-assistant/internal/httputil"
)

const (
	vespaDocumentPath = "/document/v1/research/paper/docid/"
	vespaSearchPath   = "/search/"
	vespaHealthPath   = "/state/v1/health"
	vespaRankProfile  = "hybrid"
	vespaFeedWorkers  = 8
)

// Vespa ranks through a Vespa application whose "hybrid" rank profile fuses
// BM25 over the abstract with nearest-neighbor distance on the embedding.
// Documents are fed before each query and the query is restricted to them,
// so documents left by earlier calls never take a hit slot. Relevance is
// scaled by the best hit, leaving weak matches above unmatched documents.
type Vespa struct {
	BaseURL   string
	ConfigURL string
	Client    *http.Client
}

// NewVespa returns a Vespa backend. configURL is used for health checks and
// defaults to baseURL.
func NewVespa(baseURL, configURL string, client *http.Client) *Vespa {
	if client == nil {
		client = http.DefaultClient
	}
	if configURL == "" {
		configURL = baseURL
	}
	return &Vespa{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ConfigURL: strings.TrimRight(configURL, "/"),
		Client:    client,
	}
}

// Name returns "vespa".
func (v *Vespa) Name() string { return "vespa" }

// Probe checks the config server health endpoint.
func (v *Vespa) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.ConfigURL+vespaHealthPath, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	resp, err := v.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: vespa health: %w", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: vespa health returned status %d", ErrBackendUnavailable, resp.StatusCode)
	}
	return nil
}

// Rank feeds docs and runs one hybrid query.
func (v *Vespa) Rank(ctx context.Context, q Query, docs []Document) ([]Scored, error) {
	if err := v.feed(ctx, docs); err != nil {
		return nil, err
	}
	hits, err := v.search(ctx, q, docs)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(docs))
	for _, d := range docs {
		wanted[d.ID] = true
	}
	relevance := make(map[string]float64)
	for _, h := range hits {
		id := h.Fields.PaperID
		if !wanted[id] {
			continue
		}
		if prev, ok := relevance[id]; !ok || h.Relevance > prev {
			relevance[id] = h.Relevance
		}
	}
	if len(relevance) == 0 {
		return nil, nil
	}
	relevance = maxScale(relevance)

	out := make([]Scored, 0, len(docs))
	for _, d := range docs {
		out = append(out, Scored{ID: d.ID, Score: relevance[d.ID]})
	}
	return out, nil
}

type vespaDoc struct {
	Fields vespaFields `json:"fields"`
}

type vespaFields struct {
	PaperID   string       `json:"paper_id"`
	Abstract  string       `json:"abstract,omitempty"`
	Embedding *vespaTensor `json:"embedding,omitempty"`
}

type vespaTensor struct {
	Values []float32 `json:"values"`
}

func (v *Vespa) feed(ctx context.Context, docs []Document) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(vespaFeedWorkers)
	for _, d := range docs {
		g.Go(func() error { return v.put(ctx, d) })
	}
	return g.Wait()
}

func (v *Vespa) put(ctx context.Context, d Document) error {
	body, err := json.Marshal(vespaDoc{Fields: vespaFields{
		PaperID:   d.ID,
		Abstract:  d.Text,
		Embedding: &vespaTensor{Values: d.Embedding},
	}})
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", d.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		v.BaseURL+vespaDocumentPath+url.PathEscape(d.ID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating feed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httputil.DoWithRetry(ctx, v.Client, req, 2)
	if err != nil {
		return fmt.Errorf("%w: feeding %s: %w", ErrBackendUnavailable, d.ID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: feeding %s returned status %d", ErrBackendUnavailable, d.ID, resp.StatusCode)
	}
	return nil
}

type vespaHit struct {
	Relevance float64     `json:"relevance"`
	Fields    vespaFields `json:"fields"`
}

type vespaResponse struct {
	Root struct {
		Children []vespaHit `json:"children"`
	} `json:"root"`
}

func (v *Vespa) search(ctx context.Context, q Query, docs []Document) ([]vespaHit, error) {
	hits := len(docs)
	filter := idFilter(docs)
	params := url.Values{}
	params.Set("query", q.Text)
	params.Set("hits", fmt.Sprint(hits))
	if len(q.Embedding) > 0 {
		emb, err := json.Marshal(q.Embedding)
		if err != nil {
			return nil, fmt.Errorf("marshaling query embedding: %w", err)
		}
		params.Set("yql", fmt.Sprintf(
			"select * from sources * where %s and (userQuery() or ({targetHits:%d}nearestNeighbor(embedding, query_embedding)))",
			filter, hits))
		params.Set("ranking.profile", vespaRankProfile)
		params.Set("input.query(query_embedding)", string(emb))
	} else {
		params.Set("yql", fmt.Sprintf("select * from sources * where %s and userQuery()", filter))
		params.Set("ranking.profile", "default")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.BaseURL+vespaSearchPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	resp, err := httputil.DoWithRetry(ctx, v.Client, req, 2)
	if err != nil {
		return nil, fmt.Errorf("%w: vespa search: %w", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: vespa search returned status %d: %s",
			ErrBackendUnavailable, resp.StatusCode, string(body))
	}

	var result vespaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding vespa response: %w", err)
	}
	return result.Root.Children, nil
}

// idFilter restricts a YQL query to the given documents.
func idFilter(docs []Document) string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = yqlString(d.ID)
	}
	return "paper_id in (" + strings.Join(ids, ", ") + ")"
}

var yqlEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func yqlString(s string) string {
	return `"` + yqlEscaper.Replace(s) + `"`
}
