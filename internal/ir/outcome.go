package ir

import (
	"errors"
	"fmt"
	"time"
)

// SourceState is one version of the unit under validation.
// Digest is derived from Content; see SourceDigest.
type SourceState struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Digest  string `json:"digest"`
}

// NewSourceState builds a SourceState with its digest filled in.
func NewSourceState(path, content string) SourceState {
	return SourceState{Path: path, Content: content, Digest: SourceDigest(content)}
}

// RunState is a state of the repair state machine.
type RunState string

const (
	StateScoping    RunState = "scoping"
	StateGenerating RunState = "generating"
	StateValidating RunState = "validating"
	StateRepairing  RunState = "repairing"
	StateTerminal   RunState = "terminal"
)

// RunStatus is the terminal classification of a run.
type RunStatus string

const (
	StatusSucceeded       RunStatus = "succeeded"
	StatusExhaustedBudget RunStatus = "exhausted_budget"
	StatusFatalError      RunStatus = "fatal_error"
	StatusCancelled       RunStatus = "cancelled"
)

// Failure is the error surfaced verbatim in a RunOutcome.
type Failure struct {
	Code    string   `json:"code"`
	State   RunState `json:"state"`
	Message string   `json:"message"`
}

func (f Failure) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Code, f.State, f.Message)
}

// RepairAttempt is one validated iteration of the repair loop.
//
// Index 0 validates the Oracle's proposal and has no Trigger. Every later
// attempt was triggered by the previous attempt's verdict.
type RepairAttempt struct {
	Index           int             `json:"index"`
	Trigger         *Verdict        `json:"trigger,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	CandidateDigest string          `json:"candidate_digest"`
	Repeated        bool            `json:"repeated,omitempty"`
	Baseline        ExecutionResult `json:"baseline"`
	Candidate       ExecutionResult `json:"candidate"`
	Verdict         Verdict         `json:"verdict"`
}

// RunOutcome is the terminal record of a run, handed once to the evidence
// sink.
type RunOutcome struct {
	SchemaVersion string          `json:"schema_version"`
	RunID         string          `json:"run_id"`
	Status        RunStatus       `json:"status"`
	Error         *Failure        `json:"error,omitempty"`
	Symbol        Symbol          `json:"symbol"`
	MaxRepairs    int             `json:"max_repairs"`
	DryRun        bool            `json:"dry_run,omitempty"`
	Report        *ImpactReport   `json:"report,omitempty"`
	Attempts      []RepairAttempt `json:"attempts"`
	Original      *SourceState    `json:"original,omitempty"`
	Final         *SourceState    `json:"final,omitempty"`
	Diff          string          `json:"diff,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
}

// FinalPair returns the result pair of the last attempt.
func (o RunOutcome) FinalPair() (baseline, candidate ExecutionResult, ok bool) {
	if len(o.Attempts) == 0 {
		return ExecutionResult{}, ExecutionResult{}, false
	}
	last := o.Attempts[len(o.Attempts)-1]
	return last.Baseline, last.Candidate, true
}

// Repairs is the number of repair iterations consumed.
func (o RunOutcome) Repairs() int {
	if len(o.Attempts) == 0 {
		return 0
	}
	return len(o.Attempts) - 1
}

// Validate checks that the outcome is fully populated and internally
// consistent. All violations are joined into one error.
func (o RunOutcome) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if o.RunID == "" {
		add("run_id is empty")
	}
	if o.MaxRepairs < 0 {
		add("max_repairs is negative: %d", o.MaxRepairs)
	}
	if len(o.Attempts) > o.MaxRepairs+1 {
		add("%d attempts exceed budget of %d repairs", len(o.Attempts), o.MaxRepairs)
	}
	if o.FinishedAt.Before(o.StartedAt) {
		add("finished_at precedes started_at")
	}

	for i, a := range o.Attempts {
		if a.Index != i {
			add("attempt %d: index is %d", i, a.Index)
		}
		if a.Baseline.Mode != ModeBaseline {
			add("attempt %d: baseline result has mode %q", i, a.Baseline.Mode)
		}
		if a.Candidate.Mode != ModeCandidate {
			add("attempt %d: candidate result has mode %q", i, a.Candidate.Mode)
		}
		if a.FinishedAt.Before(a.StartedAt) {
			add("attempt %d: finished_at precedes started_at", i)
		}
		if a.CandidateDigest == "" {
			add("attempt %d: candidate_digest is empty", i)
		}
		if i == 0 {
			if a.Trigger != nil {
				add("attempt 0 has a trigger")
			}
			continue
		}
		prev := o.Attempts[i-1]
		if a.StartedAt.Before(prev.FinishedAt) {
			add("attempt %d overlaps attempt %d", i, i-1)
		}
		if a.Trigger == nil {
			add("attempt %d has no trigger", i)
		} else if a.Trigger.Classification != prev.Verdict.Classification {
			add("attempt %d: trigger %q does not match attempt %d verdict %q",
				i, a.Trigger.Classification, i-1, prev.Verdict.Classification)
		}
		if prev.Verdict.IsEquivalent() {
			add("attempt %d follows an equivalent verdict", i)
		}
	}

	var last *RepairAttempt
	if n := len(o.Attempts); n > 0 {
		last = &o.Attempts[n-1]
	}

	switch o.Status {
	case StatusSucceeded:
		if o.Error != nil {
			add("succeeded run carries an error")
		}
		if o.Report == nil {
			add("succeeded run has no impact report")
		}
		if !o.DryRun && (last == nil || !last.Verdict.IsEquivalent()) {
			add("succeeded run does not end in an equivalent verdict")
		}
	case StatusExhaustedBudget:
		if last == nil || last.Verdict.IsEquivalent() {
			add("exhausted run must end in a non-equivalent verdict")
		}
		if o.Repairs() != o.MaxRepairs {
			add("exhausted run used %d of %d repairs", o.Repairs(), o.MaxRepairs)
		}
	case StatusFatalError, StatusCancelled:
		if o.Error == nil {
			add("%s run has no error", o.Status)
		}
	default:
		add("unknown status %q", o.Status)
	}

	return errors.Join(errs...)
}
