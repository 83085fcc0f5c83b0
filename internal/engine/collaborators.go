package engine

import (
	"context"

	"github.com/roach88/parity/internal/harness"
	"github.com/roach88/parity/internal/impact"
	"github.com/roach88/parity/internal/index"
	"github.com/roach88/parity/internal/ir"
	"github.com/roach88/parity/internal/metrics"
	"github.com/roach88/parity/internal/verify"
)

// Scoper produces the impact report that opens every run.
type Scoper interface {
	Scope(ctx context.Context, sym ir.Symbol) (ir.ImpactReport, error)
}

// Validator runs the suite in both modes against the staged candidate and
// compares the results.
type Validator interface {
	Validate(ctx context.Context) (baseline, candidate ir.ExecutionResult, verdict ir.Verdict)
}

// SourceControl owns the unit's source. vcs.Workspace and vcs.Git
// implement it.
type SourceControl interface {
	Snapshot(ctx context.Context) (ir.SourceState, error)
	Apply(ctx context.Context, state ir.SourceState) error
	Restore(ctx context.Context, snapshot ir.SourceState) error
	Finalize(ctx context.Context, final ir.SourceState, message string) error
}

// Sink receives the finished outcome of every run.
type Sink interface {
	Record(ctx context.Context, o ir.RunOutcome) error
}

// IndexScoper scans with a symbol index and scores the result.
type IndexScoper struct {
	Index      *index.Index
	Root       string
	Thresholds ir.RiskThresholds
	Metrics    *metrics.Recorder
}

// Scope implements Scoper. A symbol found nowhere fails with
// *impact.AnalysisError.
func (s *IndexScoper) Scope(ctx context.Context, sym ir.Symbol) (ir.ImpactReport, error) {
	res, err := s.Index.Scan(ctx, s.Root, sym)
	if err != nil {
		return ir.ImpactReport{}, err
	}
	s.Metrics.Scanned(res.Scanned)
	return impact.Analyze(res, sym, s.Thresholds)
}

// SuiteValidator runs a harness adapter and classifies its results.
type SuiteValidator struct {
	Adapter *harness.Adapter
	Metrics *metrics.Recorder
}

// Validate implements Validator.
func (v *SuiteValidator) Validate(ctx context.Context) (baseline, candidate ir.ExecutionResult, verdict ir.Verdict) {
	baseline, candidate = v.Adapter.RunBoth(ctx)
	v.Metrics.SuiteRan(baseline)
	v.Metrics.SuiteRan(candidate)
	return baseline, candidate, verify.Verify(baseline, candidate)
}
