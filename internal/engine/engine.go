package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/parity/internal/impact"
	"github.com/roach88/parity/internal/ir"
	"github.com/roach88/parity/internal/metrics"
	"github.com/roach88/parity/internal/oracle"
	"github.com/roach88/parity/internal/vcs"
)

// DefaultOracleTimeout bounds one oracle call.
const DefaultOracleTimeout = 5 * time.Minute

// Request describes one run.
type Request struct {
	Symbol ir.Symbol

	// Goal is passed to the oracle with the proposal request.
	Goal string

	// Toggle names the candidate toggle, for oracle prompts.
	Toggle string

	// MaxRepairs is the repair budget. Negative means DefaultMaxRepairs.
	MaxRepairs int

	// DryRun stops after Scoping.
	DryRun bool
}

// Deps are the collaborators of an Orchestrator. All are required.
type Deps struct {
	Scoper    Scoper
	Oracle    oracle.Oracle
	Source    SourceControl
	Validator Validator
	Sink      Sink
}

// Orchestrator drives runs through the repair state machine.
//
// Thread-safety: Run may be called from any goroutine; runs are
// serialized.
type Orchestrator struct {
	deps Deps

	clock            Clock
	ids              RunIDGenerator
	metrics          *metrics.Recorder
	logger           *slog.Logger
	oracleTimeout    time.Duration
	restoreOnFailure bool
	repeats          *RepeatDetector

	// mu serializes runs; writing guards the source between Apply and the
	// recorded verdict.
	mu      sync.Mutex
	writing bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the timestamp source. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithRunIDs sets the run id generator. Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(o *Orchestrator) {
		o.ids = g
	}
}

// WithMetrics records run metrics. A nil recorder disables them.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithOracleTimeout bounds every oracle call. Non-positive values select
// DefaultOracleTimeout.
func WithOracleTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.oracleTimeout = d
	}
}

// WithRestoreOnFailure controls whether the snapshot is restored when a run
// does not succeed. Default: true.
func WithRestoreOnFailure(restore bool) Option {
	return func(o *Orchestrator) {
		o.restoreOnFailure = restore
	}
}

// New creates an Orchestrator.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Scoper == nil:
		return nil, fmt.Errorf("engine: scoper is required")
	case deps.Oracle == nil:
		return nil, fmt.Errorf("engine: oracle is required")
	case deps.Source == nil:
		return nil, fmt.Errorf("engine: source control is required")
	case deps.Validator == nil:
		return nil, fmt.Errorf("engine: validator is required")
	case deps.Sink == nil:
		return nil, fmt.Errorf("engine: sink is required")
	}

	o := &Orchestrator{
		deps:             deps,
		clock:            SystemClock{},
		ids:              UUIDv7Generator{},
		oracleTimeout:    DefaultOracleTimeout,
		restoreOnFailure: true,
		repeats:          NewRepeatDetector(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.oracleTimeout <= 0 {
		o.oracleTimeout = DefaultOracleTimeout
	}
	return o, nil
}

// run is the mutable state of one Run call.
type run struct {
	req      Request
	outcome  ir.RunOutcome
	budget   *BudgetEnforcer
	state    ir.RunState
	original ir.SourceState
	staged   *ir.SourceState
	logger   *slog.Logger
}

// Run executes one run to a terminal state and returns its outcome.
//
// The outcome is always complete. The returned error is non-nil only when
// the sink failed to record the outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) (ir.RunOutcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	maxRepairs := req.MaxRepairs
	if maxRepairs < 0 {
		maxRepairs = DefaultMaxRepairs
	}
	runID := o.ids.Generate()
	r := &run{
		req:    req,
		budget: NewBudgetEnforcer(maxRepairs),
		state:  ir.StateScoping,
		logger: o.logger.With("run_id", runID),
		outcome: ir.RunOutcome{
			SchemaVersion: ir.SchemaVersion,
			RunID:         runID,
			Symbol:        req.Symbol,
			MaxRepairs:    maxRepairs,
			DryRun:        req.DryRun,
			Attempts:      []ir.RepairAttempt{},
			StartedAt:     o.clock.Now(),
		},
	}
	defer o.repeats.Clear(runID)

	r.logger.Info("run started", "symbol", req.Symbol, "max_repairs", maxRepairs, "dry_run", req.DryRun)

	status, err := o.drive(ctx, r)
	o.finish(ctx, r, status, err)

	if verr := r.outcome.Validate(); verr != nil {
		r.logger.Error("outcome failed validation", "error", verr)
		if r.outcome.Status != ir.StatusFatalError {
			r.outcome.Status = ir.StatusFatalError
			r.outcome.Error = newRunError(ErrCodeInvalidOutcome, ir.StateTerminal, verr, "outcome is inconsistent").Failure()
		}
	}

	o.metrics.RunFinished(r.outcome.Status)
	r.logger.Info("run finished",
		"status", r.outcome.Status,
		"attempts", len(r.outcome.Attempts),
		"repairs", r.outcome.Repairs())

	if err := o.deps.Sink.Record(context.WithoutCancel(ctx), r.outcome); err != nil {
		r.logger.Error("sink failed", "error", err)
		return r.outcome, fmt.Errorf("record outcome %s: %w", runID, err)
	}
	return r.outcome, nil
}

// drive runs the state machine until a terminal status is reached.
func (o *Orchestrator) drive(ctx context.Context, r *run) (ir.RunStatus, error) {
	if err := r.boundary(ctx); err != nil {
		return ir.StatusCancelled, err
	}

	snap, err := o.deps.Source.Snapshot(ctx)
	if err != nil {
		return ir.StatusFatalError, newRunError(ErrCodeSourceControl, r.state, err, "snapshot failed")
	}
	r.original = snap
	r.outcome.Original = &snap

	report, err := o.deps.Scoper.Scope(ctx, r.req.Symbol)
	if err != nil {
		if ctx.Err() != nil {
			return ir.StatusCancelled, newRunError(ErrCodeCancelled, r.state, ctx.Err(), "cancelled during scan")
		}
		var ae *impact.AnalysisError
		if errors.As(err, &ae) {
			return ir.StatusFatalError, newRunError(ErrCodeAnalysis, r.state, err, "symbol not found")
		}
		return ir.StatusFatalError, newRunError(ErrCodeAnalysis, r.state, err, "scan failed")
	}
	r.outcome.Report = &report
	for _, w := range report.Warnings {
		r.logger.Warn("scan warning", "code", ErrCodeScanWarning, "path", w.Path, "reason", w.Reason)
	}
	r.logger.Info("scoped",
		"risk", report.Risk,
		"call_sites", report.CallSites,
		"files", report.FileCount,
		"low_confidence", report.LowConfidence)

	if r.req.DryRun {
		return ir.StatusSucceeded, nil
	}

	if err := r.enter(ctx, ir.StateGenerating); err != nil {
		return ir.StatusCancelled, err
	}
	candidate, err := o.callOracle(ctx, r, "propose", func(octx context.Context) (ir.SourceState, error) {
		return o.deps.Oracle.Propose(octx, oracle.ProposeRequest{
			Symbol:  r.req.Symbol,
			Report:  report,
			Current: r.original,
			Goal:    r.req.Goal,
			Toggle:  r.req.Toggle,
		})
	})
	if err != nil {
		return ir.StatusFatalError, err
	}

	var trigger *ir.Verdict
	for {
		if err := r.enter(ctx, ir.StateValidating); err != nil {
			return ir.StatusCancelled, err
		}
		attempt, err := o.validate(ctx, r, candidate, trigger)
		if err != nil {
			return ir.StatusFatalError, err
		}
		r.outcome.Attempts = append(r.outcome.Attempts, attempt)
		o.metrics.AttemptFinished(attempt.Verdict)
		r.logger.Info("attempt validated",
			"attempt", attempt.Index,
			"classification", attempt.Verdict.Classification,
			"divergences", len(attempt.Verdict.Divergences),
			"repeated", attempt.Repeated)

		if attempt.Verdict.IsEquivalent() {
			return ir.StatusSucceeded, nil
		}
		if err := r.budget.Check(r.outcome.RunID); err != nil {
			return ir.StatusExhaustedBudget, newRunError(ErrCodeBudgetExhausted, r.state, err,
				"last verdict %s: %s", attempt.Verdict.Classification, attempt.Verdict.Reason)
		}

		if err := r.enter(ctx, ir.StateRepairing); err != nil {
			return ir.StatusCancelled, err
		}
		verdict := attempt.Verdict
		trigger = &verdict
		candidate, err = o.callOracle(ctx, r, "repair", func(octx context.Context) (ir.SourceState, error) {
			return o.deps.Oracle.Repair(octx, oracle.RepairRequest{
				Symbol:    r.req.Symbol,
				Report:    report,
				Candidate: candidate,
				Verdict:   verdict,
				Baseline:  attempt.Baseline,
				Result:    attempt.Candidate,
				Iteration: r.budget.Current(),
				Toggle:    r.req.Toggle,
			})
		})
		if err != nil {
			return ir.StatusFatalError, err
		}
	}
}

// validate stages candidate and runs the suite against it. The writing flag
// is held from Apply until the verdict is available.
func (o *Orchestrator) validate(ctx context.Context, r *run, candidate ir.SourceState, trigger *ir.Verdict) (ir.RepairAttempt, error) {
	if o.writing {
		panic("engine: validation started while another candidate holds the source")
	}
	o.writing = true
	defer func() { o.writing = false }()

	attempt := ir.RepairAttempt{
		Index:           len(r.outcome.Attempts),
		Trigger:         trigger,
		StartedAt:       o.clock.Now(),
		CandidateDigest: candidate.Digest,
		Repeated:        o.repeats.Observe(r.outcome.RunID, candidate.Digest),
	}
	if attempt.Repeated {
		r.logger.Warn("oracle repeated an earlier candidate", "attempt", attempt.Index, "digest", candidate.Digest)
	}

	if err := o.deps.Source.Apply(context.WithoutCancel(ctx), candidate); err != nil {
		return ir.RepairAttempt{}, newRunError(ErrCodeSourceControl, r.state, err, "apply candidate %d failed", attempt.Index)
	}
	staged := candidate
	r.staged = &staged

	attempt.Baseline, attempt.Candidate, attempt.Verdict = o.deps.Validator.Validate(context.WithoutCancel(ctx))
	if attempt.Baseline.HarnessFailed() || attempt.Candidate.HarnessFailed() {
		r.logger.Warn("harness error", "code", ErrCodeHarness,
			"baseline", attempt.Baseline.HarnessError,
			"candidate", attempt.Candidate.HarnessError)
	}
	attempt.FinishedAt = o.clock.Now()
	return attempt, nil
}

// callOracle runs call detached from ctx's cancellation and bounded by the
// oracle timeout. The returned state is re-addressed to the target path
// and its digest recomputed.
func (o *Orchestrator) callOracle(ctx context.Context, r *run, op string, call func(context.Context) (ir.SourceState, error)) (ir.SourceState, error) {
	octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.oracleTimeout)
	defer cancel()

	start := time.Now()
	state, err := call(octx)
	o.metrics.OracleCalled(op, time.Since(start), err)
	if err != nil {
		r.logger.Error("oracle failed", "op", op, "error", err)
		return ir.SourceState{}, newRunError(ErrCodeOracle, r.state, err, "%s failed", op)
	}
	if state.Path == "" {
		state.Path = r.original.Path
	}
	if state.Path != r.original.Path {
		return ir.SourceState{}, newRunError(ErrCodeOracle, r.state, nil,
			"%s returned %s, want %s", op, state.Path, r.original.Path)
	}
	return ir.NewSourceState(state.Path, state.Content), nil
}

// finish records the terminal status and settles the source: the final
// candidate is finalized on success, and the snapshot is restored
// otherwise.
func (o *Orchestrator) finish(ctx context.Context, r *run, status ir.RunStatus, err error) {
	r.state = ir.StateTerminal
	detached := context.WithoutCancel(ctx)

	if r.staged != nil {
		if diff, derr := vcs.UnifiedDiff(r.original, *r.staged); derr != nil {
			r.logger.Warn("diff failed", "error", derr)
		} else {
			r.outcome.Diff = diff
		}
	}

	if status == ir.StatusSucceeded && !r.req.DryRun {
		final := *r.staged
		msg := fmt.Sprintf("parity: %s verified (run %s)", r.req.Symbol, r.outcome.RunID)
		if ferr := o.deps.Source.Finalize(detached, final, msg); ferr != nil {
			status = ir.StatusFatalError
			err = newRunError(ErrCodeSourceControl, ir.StateTerminal, ferr, "finalize failed")
		} else {
			r.outcome.Final = &final
		}
	}

	if status != ir.StatusSucceeded && r.staged != nil && o.restoreOnFailure {
		if rerr := o.deps.Source.Restore(detached, r.original); rerr != nil {
			r.logger.Error("restore failed", "error", rerr)
			prior := "run ended " + string(status)
			if err != nil {
				prior = err.Error()
			}
			status = ir.StatusFatalError
			err = newRunError(ErrCodeSourceControl, ir.StateTerminal, rerr, "restore failed after: %s", prior)
		} else {
			r.logger.Info("source restored", "digest", r.original.Digest)
		}
	}

	r.outcome.Status = status
	if err != nil {
		var re *RunError
		if !errors.As(err, &re) {
			re = newRunError(ErrCodeInvalidOutcome, r.state, err, "")
		}
		r.outcome.Error = re.Failure()
	}
	r.outcome.FinishedAt = o.clock.Now()
}

// enter moves r to state after checking for cancellation.
func (r *run) enter(ctx context.Context, state ir.RunState) error {
	if err := r.boundary(ctx); err != nil {
		return err
	}
	r.logger.Debug("state", "from", r.state, "to", state)
	r.state = state
	return nil
}

// boundary reports a cancellation observed between states.
func (r *run) boundary(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return newRunError(ErrCodeCancelled, r.state, err, "cancelled before leaving %s", r.state)
	}
	return nil
}
