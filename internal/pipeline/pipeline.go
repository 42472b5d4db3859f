// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline sequences the planning, fetching, analysis and writing
// stages of a research run and reports progress as an ordered event stream.
//
// A run emits exactly one event per status, in types.StatusSequence order,
// and ends with a single complete or error event. If the caller cancels the
// context the pipeline stops emitting and starts no further stage, but the
// stage already in flight runs to completion on a detached context.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/fetch"
	"github.com/pdiddy/research-assistant/internal/rank"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// Planner turns a query into a search plan.
type Planner interface {
	Plan(ctx context.Context, query string) (types.SearchPlan, error)
}

// Fetcher executes a search plan.
type Fetcher interface {
	Fetch(ctx context.Context, plan types.SearchPlan) (fetch.Result, error)
}

// Analyzer ranks and clusters fetched papers.
type Analyzer interface {
	Analyze(ctx context.Context, query string, set *types.PaperSet) (rank.Analysis, error)
}

// Writer synthesizes the report.
type Writer interface {
	Write(ctx context.Context, query string, ranked []types.RankedPaper, themes []types.Theme) (types.Report, error)
}

// ReportSink receives the report of every successful run. Save errors are
// logged and never fail the run.
type ReportSink interface {
	Save(ctx context.Context, report types.Report) error
}

// Request is one research run.
type Request struct {
	Query string

	// MaxPapers overrides the planned paper budget when positive.
	MaxPapers int
}

// Pipeline runs research requests. It holds no per-run state and may serve
// concurrent runs.
type Pipeline struct {
	planner  Planner
	fetcher  Fetcher
	analyzer Analyzer
	writer   Writer
	sink     ReportSink
	logger   *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSink hands every completed report to sink.
func WithSink(sink ReportSink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// New assembles a pipeline from its stages.
func New(planner Planner, fetcher Fetcher, analyzer Analyzer, writer Writer, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		planner:  planner,
		fetcher:  fetcher,
		analyzer: analyzer,
		writer:   writer,
		logger:   logger.Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a research run and returns its progress stream. The channel is
// closed after the terminal event, or early if ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, req Request) <-chan types.ProgressEvent {
	events := make(chan types.ProgressEvent, len(types.StatusSequence))
	go func() {
		defer close(events)
		p.execute(ctx, req, func(ev types.ProgressEvent) bool {
			if ctx.Err() != nil {
				return false
			}
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return events
}

// RunSync runs a request to completion and returns the report together with
// every event emitted. A failed stage is returned as a *types.StageError.
func (p *Pipeline) RunSync(ctx context.Context, req Request) (types.Report, []types.ProgressEvent, error) {
	var events []types.ProgressEvent
	report, err := p.execute(ctx, req, func(ev types.ProgressEvent) bool {
		if ctx.Err() != nil {
			return false
		}
		events = append(events, ev)
		return true
	})
	return report, events, err
}

// emitFunc delivers one event and reports whether the consumer is still
// listening.
type emitFunc func(types.ProgressEvent) bool

type run struct {
	id     string
	query  string
	start  time.Time
	emit   emitFunc
	logger *zap.Logger
}

func (r *run) send(status types.Status, msg string, mutate ...func(*types.ProgressEvent)) bool {
	ev := types.ProgressEvent{Status: status, Message: msg, RunID: r.id}
	for _, m := range mutate {
		m(&ev)
	}
	if !r.emit(ev) {
		r.logger.Info("consumer gone, stopping run", zap.String("status", string(status)))
		return false
	}
	return true
}

func (r *run) fail(stage types.Stage, err error) error {
	serr := &types.StageError{Stage: stage, Err: err}
	fields := []zap.Field{
		zap.String("stage", string(stage)),
		zap.Bool("transient", serr.Transient()),
		zap.Error(err),
	}
	if types.IsHardFailure(err) {
		r.logger.Warn("run failed", fields...)
	} else {
		r.logger.Error("run failed with unexpected error", fields...)
	}
	r.send(types.StatusError, serr.Error(), func(ev *types.ProgressEvent) { ev.Stage = stage })
	return serr
}

// execute drives the state machine. Each stage runs on a context that the
// caller's cancellation does not reach.
func (p *Pipeline) execute(ctx context.Context, req Request, emit emitFunc) (types.Report, error) {
	r := &run{
		id:    uuid.NewString(),
		query: strings.TrimSpace(req.Query),
		start: time.Now(),
		emit:  emit,
	}
	r.logger = p.logger.With(zap.String("run_id", r.id))
	stageCtx := context.WithoutCancel(ctx)
	cancelled := func() (types.Report, error) {
		return types.Report{}, fmt.Errorf("run %s abandoned: %w", r.id, context.Cause(ctx))
	}

	if !r.send(types.StatusStarting, fmt.Sprintf("Starting research: %q", r.query)) {
		return cancelled()
	}

	// Planning.
	if !r.send(types.StatusPlanning, "Planning search strategy") {
		return cancelled()
	}
	plan, err := p.planner.Plan(stageCtx, r.query)
	if err != nil {
		return types.Report{}, r.fail(types.StagePlanning, err)
	}
	plan = plan.WithMaxPapers(req.MaxPapers)
	if !r.send(types.StatusPlanned, fmt.Sprintf("Planned %d keywords across %d sources (up to %d papers): %s",
		len(plan.Keywords), len(plan.Sources), plan.MaxPapers, strings.Join(plan.Keywords, ", "))) {
		return cancelled()
	}

	// Fetching.
	if !r.send(types.StatusFetching, fmt.Sprintf("Searching %s", joinSources(plan.Sources))) {
		return cancelled()
	}
	fetched, err := p.fetcher.Fetch(stageCtx, plan)
	if err != nil {
		return types.Report{}, r.fail(types.StageFetching, err)
	}
	if !r.send(types.StatusFetched, fmt.Sprintf("Found %d unique papers", fetched.Papers.Len()),
		func(ev *types.ProgressEvent) {
			ev.PapersCount = types.Count(fetched.Papers.Len())
			ev.Warning = fetchWarning(fetched)
		}) {
		return cancelled()
	}

	// Analyzing.
	if !r.send(types.StatusAnalyzing, fmt.Sprintf("Ranking %d papers and extracting themes", fetched.Papers.Len())) {
		return cancelled()
	}
	analysis, err := p.analyzer.Analyze(stageCtx, r.query, fetched.Papers)
	if err != nil {
		return types.Report{}, r.fail(types.StageAnalyzing, err)
	}
	if !r.send(types.StatusAnalyzed, fmt.Sprintf("Ranked %d papers with %s, found %d themes",
		len(analysis.Ranked), analysis.Backend, len(analysis.Themes)),
		func(ev *types.ProgressEvent) {
			ev.PapersCount = types.Count(len(analysis.Ranked))
			ev.ThemesCount = types.Count(len(analysis.Themes))
			if n := len(analysis.Unembedded); n > 0 {
				ev.Warning = fmt.Sprintf("%d papers could not be embedded and were not ranked", n)
			}
		}) {
		return cancelled()
	}

	// Writing.
	if !r.send(types.StatusWriting, "Writing report") {
		return cancelled()
	}
	report, err := p.writer.Write(stageCtx, r.query, analysis.Ranked, analysis.Themes)
	if err != nil {
		return types.Report{}, r.fail(types.StageWriting, err)
	}
	report.ID = r.id
	report.Backend = analysis.Backend
	report.Elapsed = time.Since(r.start)
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	if p.sink != nil {
		if err := p.sink.Save(stageCtx, report); err != nil {
			r.logger.Warn("saving report failed", zap.Error(err))
		}
	}

	r.logger.Info("run complete",
		zap.Int("papers", report.PapersAnalyzed),
		zap.Int("themes", len(report.Themes)),
		zap.Duration("elapsed", report.Elapsed))

	final := report
	r.send(types.StatusComplete, fmt.Sprintf("Report ready: %d papers, %d themes", report.PapersAnalyzed, len(report.Themes)),
		func(ev *types.ProgressEvent) {
			ev.PapersCount = types.Count(report.PapersAnalyzed)
			ev.ThemesCount = types.Count(len(report.Themes))
			ev.Report = &final
		})
	return report, nil
}

func fetchWarning(res fetch.Result) string {
	var parts []string
	if failed := res.FailedSources(); len(failed) > 0 {
		parts = append(parts, fmt.Sprintf("%d sources failed: %s", len(failed), joinSources(failed)))
	}
	if res.Widened {
		parts = append(parts, "planned sources returned nothing, searched all enabled sources")
	}
	return strings.Join(parts, "; ")
}

func joinSources(ids []types.SourceID) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.DisplayName()
	}
	return strings.Join(names, ", ")
}
