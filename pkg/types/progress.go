// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Status is the state reported by a ProgressEvent.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusPlanning  Status = "planning"
	StatusPlanned   Status = "planned"
	StatusFetching  Status = "fetching"
	StatusFetched   Status = "fetched"
	StatusAnalyzing Status = "analyzing"
	StatusAnalyzed  Status = "analyzed"
	StatusWriting   Status = "writing"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// StatusSequence is the order in which a successful run visits statuses.
var StatusSequence = []Status{
	StatusStarting,
	StatusPlanning,
	StatusPlanned,
	StatusFetching,
	StatusFetched,
	StatusAnalyzing,
	StatusAnalyzed,
	StatusWriting,
	StatusComplete,
}

// Order returns the position of s in StatusSequence. The error status sorts
// after every other status since it may follow any of them.
func (s Status) Order() int {
	if s == StatusError {
		return len(StatusSequence)
	}
	for i, st := range StatusSequence {
		if st == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether s ends an event sequence.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Stage names a pipeline stage in error reports.
type Stage string

const (
	StagePlanning  Stage = "planning"
	StageFetching  Stage = "fetching"
	StageAnalyzing Stage = "analyzing"
	StageWriting   Stage = "writing"
)

// ProgressEvent is one entry of a run's append-only progress stream.
type ProgressEvent struct {
	Status  Status `json:"status" yaml:"status"`
	Message string `json:"message" yaml:"message"`

	// RunID is shared by every event of one run.
	RunID string `json:"run_id,omitempty" yaml:"run_id,omitempty"`

	PapersCount *int `json:"papers_count,omitempty" yaml:"papers_count,omitempty"`
	ThemesCount *int `json:"themes_count,omitempty" yaml:"themes_count,omitempty"`

	// Warning carries non-fatal degradation, e.g. sources that failed.
	Warning string `json:"warning,omitempty" yaml:"warning,omitempty"`

	// Stage is set on error events to the stage that failed.
	Stage Stage `json:"stage,omitempty" yaml:"stage,omitempty"`

	// Report is set on the complete event only.
	Report *Report `json:"report,omitempty" yaml:"report,omitempty"`
}

// Count returns a pointer to n for the optional count fields.
func Count(n int) *int {
	return &n
}
