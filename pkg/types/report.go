// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Theme is a cluster of ranked papers sharing a latent topic.
type Theme struct {
	// Name is a short human-readable label.
	Name string `json:"name" yaml:"name"`

	// Description is one or two sentences on what unites the member papers.
	Description string `json:"description" yaml:"description"`

	// RelevanceScore is the mean member relevance, clamped to [0,1].
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`

	// MemberPaperIDs lists the ids of the papers in the cluster.
	MemberPaperIDs []string `json:"member_paper_ids" yaml:"member_paper_ids"`
}

// Report is the final output of a successful pipeline run. It is handed to
// the caller by value.
type Report struct {
	ID             string        `json:"id" yaml:"id"`
	Query          string        `json:"query" yaml:"query"`
	PapersAnalyzed int           `json:"papers_analyzed" yaml:"papers_analyzed"`
	Themes         []Theme       `json:"themes" yaml:"themes"`
	Citations      []string      `json:"citations" yaml:"citations"`
	MarkdownBody   string        `json:"markdown_body" yaml:"markdown_body"`
	TopPapers      []RankedPaper `json:"top_papers,omitempty" yaml:"top_papers,omitempty"`
	Sources        []SourceID    `json:"sources,omitempty" yaml:"sources,omitempty"`

	// Backend names the similarity backend that produced the ranking.
	Backend   string        `json:"backend,omitempty" yaml:"backend,omitempty"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
}
