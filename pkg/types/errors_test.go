// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHardFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"invalid input", fmt.Errorf("%w: query is empty", ErrInvalidInput), true},
		{"no papers", fmt.Errorf("%w: all 2 sources failed", ErrNoPapersFound), true},
		{"analysis", fmt.Errorf("%w: embedding failed", ErrAnalysis), true},
		{"write", fmt.Errorf("%w: %w", ErrWrite, ErrGeneration), true},
		{"transient collaborator", fmt.Errorf("%w: 503", ErrSourceUnavailable), false},
		{"unexpected", errors.New("nil pointer"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHardFailure(tt.err))
		})
	}
}

func TestStageErrorTransient(t *testing.T) {
	invalid := &StageError{Stage: StagePlanning, Err: fmt.Errorf("%w: empty", ErrInvalidInput)}
	assert.False(t, invalid.Transient())
	assert.Equal(t, "planning stage failed: invalid input: empty", invalid.Error())

	analysis := &StageError{Stage: StageAnalyzing, Err: ErrAnalysis}
	assert.True(t, analysis.Transient())
	assert.True(t, errors.Is(analysis, ErrAnalysis))
}
