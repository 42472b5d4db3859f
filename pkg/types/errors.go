// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// Caller mistakes. Never retried.
var ErrInvalidInput = errors.New("invalid input")

// Transient collaborator failures. Components retry these locally and then
// degrade or escalate.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrProvider          = errors.New("embedding provider error")
	ErrGeneration        = errors.New("generation error")
)

// Terminal stage failures. Each ends the run with an error event.
var (
	ErrNoPapersFound = errors.New("no papers found")
	ErrAnalysis      = errors.New("analysis failed")
	ErrWrite         = errors.New("report writing failed")
)

// StageError records which pipeline stage produced a terminal failure.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Transient reports whether re-running the same query might succeed.
// Invalid input never will.
func (e *StageError) Transient() bool {
	return !errors.Is(e.Err, ErrInvalidInput)
}

// IsHardFailure reports whether err is one of the terminal stage failures
// the orchestrator turns into an error event.
func IsHardFailure(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNoPapersFound) ||
		errors.Is(err, ErrAnalysis) ||
		errors.Is(err, ErrWrite)
}
