// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the value types passed between research pipeline
// stages: SearchPlan (planner to fetcher), PaperSet (fetcher to analyzer),
// RankedPaper and Theme (analyzer to writer), Report and ProgressEvent
// (orchestrator to caller), plus stage configuration and the error taxonomy.
package types

import "strings"

// SearchPlan is produced by the planner and consumed only by the fetcher.
// Treat it as immutable once returned.
type SearchPlan struct {
	// Keywords are ordered search phrases, most important first.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// Sources is the set of sources to query, without duplicates.
	Sources []SourceID `json:"sources" yaml:"sources"`

	// MaxPapers caps the size of the fetched PaperSet. Always > 0.
	MaxPapers int `json:"max_papers" yaml:"max_papers"`
}

// QueryString joins the keywords into a single free-text search string.
func (p SearchPlan) QueryString() string {
	return strings.Join(p.Keywords, " ")
}

// HasSource reports whether s is part of the plan.
func (p SearchPlan) HasSource(s SourceID) bool {
	for _, src := range p.Sources {
		if src == s {
			return true
		}
	}
	return false
}

// WithMaxPapers returns a copy of the plan with a different paper budget.
// Non-positive values leave the plan unchanged.
func (p SearchPlan) WithMaxPapers(n int) SearchPlan {
	if n <= 0 {
		return p
	}
	out := p
	out.Keywords = append([]string(nil), p.Keywords...)
	out.Sources = append([]SourceID(nil), p.Sources...)
	out.MaxPapers = n
	return out
}
