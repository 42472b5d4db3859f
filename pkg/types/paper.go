// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"time"
)

// SourceID identifies an academic database.
type SourceID string

const (
	SourceArxiv           SourceID = "arxiv"
	SourceSemanticScholar SourceID = "semantic_scholar"
	SourceOpenAlex        SourceID = "openalex"
	SourcePubMed          SourceID = "pubmed"
)

// KnownSources lists every source the system can query, in default priority order.
var KnownSources = []SourceID{SourceArxiv, SourceSemanticScholar, SourceOpenAlex, SourcePubMed}

// IsKnown reports whether s is one of KnownSources.
func (s SourceID) IsKnown() bool {
	for _, k := range KnownSources {
		if s == k {
			return true
		}
	}
	return false
}

// DisplayName returns the human-readable source name used in citations
// (e.g. "semantic_scholar" becomes "Semantic Scholar").
func (s SourceID) DisplayName() string {
	switch s {
	case SourceArxiv:
		return "arXiv"
	case SourcePubMed:
		return "PubMed"
	case SourceOpenAlex:
		return "OpenAlex"
	}
	words := strings.Fields(strings.ReplaceAll(string(s), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Paper is a normalized record returned by a source client.
type Paper struct {
	// ID is source-qualified and globally unique (e.g. "arxiv:2301.07041").
	ID string `json:"id" yaml:"id"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Abstract is the paper abstract or summary.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// PublishedDate is the publication or preprint date. Zero when unknown.
	PublishedDate time.Time `json:"published_date,omitempty" yaml:"published_date,omitempty"`

	// Source identifies which client returned the paper.
	Source SourceID `json:"source" yaml:"source"`

	// URL is the landing page of the paper.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// PDFURL is a direct link to the full text, when the source exposes one.
	PDFURL string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`

	// SourceRank is the source-declared relevance in [0,1], derived from the
	// position in the source's relevance-sorted response.
	SourceRank float64 `json:"source_rank" yaml:"source_rank"`

	// Embedding is attached by the analyzer, never by a source client.
	Embedding []float32 `json:"-" yaml:"-"`
}

// QualifiedID builds a source-qualified paper id.
func QualifiedID(source SourceID, localID string) string {
	return fmt.Sprintf("%s:%s", source, localID)
}

// Year returns the publication year, or 0 when the date is unknown.
func (p Paper) Year() int {
	if p.PublishedDate.IsZero() {
		return 0
	}
	return p.PublishedDate.Year()
}

// PaperSet is a deduplicated collection of papers keyed by id. It keeps the
// order in which papers were added so that ranking ties can be broken by
// fetch order.
type PaperSet struct {
	byID  map[string]int
	order []Paper
}

// NewPaperSet returns an empty set.
func NewPaperSet() *PaperSet {
	return &PaperSet{byID: make(map[string]int)}
}

// Add inserts p unless a paper with the same id is already present.
// It reports whether p was inserted.
func (s *PaperSet) Add(p Paper) bool {
	if s.byID == nil {
		s.byID = make(map[string]int)
	}
	if _, ok := s.byID[p.ID]; ok {
		return false
	}
	s.byID[p.ID] = len(s.order)
	s.order = append(s.order, p)
	return true
}

// Get returns the paper with the given id.
func (s *PaperSet) Get(id string) (Paper, bool) {
	if s == nil {
		return Paper{}, false
	}
	idx, ok := s.byID[id]
	if !ok {
		return Paper{}, false
	}
	return s.order[idx], true
}

// Contains reports whether id is in the set.
func (s *PaperSet) Contains(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Len returns the number of papers.
func (s *PaperSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Papers returns a copy of the papers in fetch order.
func (s *PaperSet) Papers() []Paper {
	if s == nil {
		return nil
	}
	out := make([]Paper, len(s.order))
	copy(out, s.order)
	return out
}

// IDs returns the paper ids in fetch order.
func (s *PaperSet) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.order))
	for i, p := range s.order {
		ids[i] = p.ID
	}
	return ids
}

// RankedPaper is a paper with its query relevance. Ordering is by
// descending RelevanceScore with ties broken by ascending FetchIndex.
type RankedPaper struct {
	Paper `yaml:",inline"`

	// RelevanceScore is a value between 0.0 and 1.0.
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`

	// FetchIndex is the paper's position in the PaperSet it was ranked from.
	FetchIndex int `json:"fetch_index" yaml:"fetch_index"`
}

// Less reports whether a sorts before b.
func (a RankedPaper) Less(b RankedPaper) bool {
	if a.RelevanceScore != b.RelevanceScore {
		return a.RelevanceScore > b.RelevanceScore
	}
	return a.FetchIndex < b.FetchIndex
}
