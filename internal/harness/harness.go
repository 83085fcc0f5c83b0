package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/parity/internal/ir"
)

// Adapter runs a suite in a requested ExecutionMode and produces one
// immutable ExecutionResult per invocation.
type Adapter struct {
	suite  Suite
	runner Runner
	logger *slog.Logger
}

// NewAdapter creates an Adapter. A nil logger discards output.
func NewAdapter(suite Suite, runner Runner, logger *slog.Logger) (*Adapter, error) {
	if runner == nil {
		return nil, fmt.Errorf("harness: runner is required")
	}
	suite = suite.WithDefaults()
	if err := suite.validateCommon(); err != nil {
		return nil, fmt.Errorf("harness: invalid suite: %w", err)
	}
	if _, ok := runner.(*CommandRunner); ok {
		if err := suite.Validate(); err != nil {
			return nil, fmt.Errorf("harness: invalid suite: %w", err)
		}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Adapter{suite: suite, runner: runner, logger: logger}, nil
}

// Suite returns the defaulted suite the adapter runs.
func (a *Adapter) Suite() Suite {
	return a.suite
}

// Parallel reports whether RunBoth executes the modes concurrently.
func (a *Adapter) Parallel() bool {
	return a.suite.Parallel && a.runner.Isolated()
}

// RunBoth runs the suite in Baseline then Candidate mode, concurrently when
// the runner is isolated and the suite allows it.
func (a *Adapter) RunBoth(ctx context.Context) (baseline, candidate ir.ExecutionResult) {
	if !a.Parallel() {
		baseline = a.Run(ctx, ir.ModeBaseline)
		candidate = a.Run(ctx, ir.ModeCandidate)
		return baseline, candidate
	}

	var g errgroup.Group
	g.Go(func() error {
		baseline = a.Run(ctx, ir.ModeBaseline)
		return nil
	})
	g.Go(func() error {
		candidate = a.Run(ctx, ir.ModeCandidate)
		return nil
	})
	_ = g.Wait()
	return baseline, candidate
}

// attemptOutcome is one parsed invocation.
type attemptOutcome struct {
	cases        []ir.CaseOutcome
	exitCode     int
	duration     time.Duration
	harnessError string
	log          string
}

// Run executes the suite AttemptsPerMode times in mode and folds the
// attempts into one ExecutionResult. Any harness-level failure wins.
// Cases whose status differs between attempts are reported as flaky; the
// first attempt's statuses are kept.
func (a *Adapter) Run(ctx context.Context, mode ir.ExecutionMode) ir.ExecutionResult {
	attempts := make([]attemptOutcome, 0, a.suite.AttemptsPerMode)
	for i := 0; i < a.suite.AttemptsPerMode; i++ {
		out := a.runOnce(ctx, mode, i)
		attempts = append(attempts, out)
		if out.harnessError != "" {
			break
		}
	}

	in := ir.ResultInput{Mode: mode}
	var logs []string
	for _, at := range attempts {
		in.Duration += at.duration
		logs = append(logs, at.log)
		if in.HarnessError == "" && at.harnessError != "" {
			in.HarnessError = at.harnessError
			in.ExitCode = at.exitCode
		}
	}
	in.Log = strings.Join(logs, "\n")

	first := attempts[0]
	if in.HarnessError == "" {
		in.Cases = first.cases
		in.ExitCode = first.exitCode
		in.FlakyCases = flakyCases(attempts)
	}

	result := ir.NewExecutionResult(in)
	a.logger.Info("suite finished",
		"mode", mode,
		"cases", len(result.Cases),
		"passed", result.Counts.Passed,
		"failed", result.Counts.Failed,
		"errored", result.Counts.Errored,
		"harness_error", result.HarnessError,
		"flaky", len(result.FlakyCases),
		"duration", result.Duration)
	return result
}

// flakyCases lists case ids whose status is not identical across attempts,
// including ids missing from some attempt.
func flakyCases(attempts []attemptOutcome) []string {
	if len(attempts) < 2 {
		return nil
	}
	seen := make(map[string][]ir.CaseStatus)
	for i, at := range attempts {
		for _, c := range at.cases {
			statuses := seen[c.ID]
			for len(statuses) < i {
				statuses = append(statuses, "")
			}
			seen[c.ID] = append(statuses, c.Status)
		}
	}
	var flaky []string
	for id, statuses := range seen {
		if len(statuses) != len(attempts) {
			flaky = append(flaky, id)
			continue
		}
		for _, s := range statuses[1:] {
			if s != statuses[0] {
				flaky = append(flaky, id)
				break
			}
		}
	}
	return flaky
}

func (a *Adapter) runOnce(ctx context.Context, mode ir.ExecutionMode, attempt int) (out attemptOutcome) {
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(a.suite.Timeout))
	defer cancel()

	inv := Invocation{Suite: a.suite, Mode: mode, Attempt: attempt}
	a.logger.Debug("running suite", "mode", mode, "attempt", attempt, "toggle", a.suite.Toggle)

	raw, err := a.runner.Run(runCtx, inv)
	out = attemptOutcome{exitCode: raw.ExitCode, duration: raw.Duration}
	defer func() { out.log = a.transcript(inv, raw, out) }()

	switch {
	case err != nil:
		out.harnessError = fmt.Sprintf("suite failed to start: %v", err)
		return out
	case raw.TimedOut:
		out.harnessError = fmt.Sprintf("suite timed out after %s", time.Duration(a.suite.Timeout))
		return out
	case errors.Is(ctx.Err(), context.Canceled):
		out.harnessError = "suite interrupted: " + ctx.Err().Error()
		return out
	}

	cases := raw.Cases
	if cases == nil {
		var perr error
		cases, perr = a.parse(raw)
		if perr != nil {
			out.harnessError = perr.Error()
			return out
		}
	}
	if raw.ExitCode != 0 && len(cases) == 0 {
		out.harnessError = fmt.Sprintf("suite exited with code %d before any case ran", raw.ExitCode)
		return out
	}
	out.cases = cases
	return out
}

func (a *Adapter) parse(raw Raw) ([]ir.CaseOutcome, error) {
	data := raw.Stdout
	if a.suite.ReportFile != "" || a.suite.usesPlaceholder() {
		if !raw.HasReport {
			return nil, fmt.Errorf("report file missing (exit code %d)", raw.ExitCode)
		}
		data = raw.Report
	}
	cases, err := ParseReport(a.suite.Reporter, data)
	if err != nil {
		var be *BuildError
		if errors.As(err, &be) {
			return nil, be
		}
		return nil, fmt.Errorf("unreadable report: %w", err)
	}
	return cases, nil
}

// transcript renders the per-invocation log kept in the evidence pack.
func (a *Adapter) transcript(inv Invocation, raw Raw, out attemptOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "$ %s\n", strings.Join(raw.Command, " "))
	fmt.Fprintf(&b, "mode: %s (attempt %d)\n", inv.Mode, inv.Attempt+1)
	if inv.Mode == ir.ModeCandidate {
		fmt.Fprintf(&b, "toggle: %s=%s\n", a.suite.Toggle, CandidateValue)
	} else {
		fmt.Fprintf(&b, "toggle: %s unset\n", a.suite.Toggle)
	}
	fmt.Fprintf(&b, "exit code: %d\nduration: %s\n", raw.ExitCode, raw.Duration.Round(time.Millisecond))
	if out.harnessError != "" {
		fmt.Fprintf(&b, "harness error: %s\n", out.harnessError)
	}
	if len(raw.Stdout) > 0 {
		fmt.Fprintf(&b, "--- stdout ---\n%s\n", strings.TrimRight(string(raw.Stdout), "\n"))
	}
	if len(raw.Stderr) > 0 {
		fmt.Fprintf(&b, "--- stderr ---\n%s\n", strings.TrimRight(string(raw.Stderr), "\n"))
	}
	return b.String()
}
