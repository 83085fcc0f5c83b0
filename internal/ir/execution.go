package ir

import (
	"slices"
	"strings"
	"time"
)

// ExecutionMode selects which configuration of the target unit a suite run
// exercises. It is passed explicitly to every call that needs it.
type ExecutionMode string

const (
	ModeBaseline  ExecutionMode = "baseline"
	ModeCandidate ExecutionMode = "candidate"
)

// Modes lists both modes in canonical order.
var Modes = []ExecutionMode{ModeBaseline, ModeCandidate}

// Valid reports whether m is one of the two known modes.
func (m ExecutionMode) Valid() bool {
	return m == ModeBaseline || m == ModeCandidate
}

// Other returns the opposite mode.
func (m ExecutionMode) Other() ExecutionMode {
	if m == ModeCandidate {
		return ModeBaseline
	}
	return ModeCandidate
}

// CaseStatus is the outcome of one test case.
type CaseStatus string

const (
	StatusPassed  CaseStatus = "passed"
	StatusFailed  CaseStatus = "failed"
	StatusErrored CaseStatus = "errored"
	StatusSkipped CaseStatus = "skipped"
)

// Failing reports whether the status is Failed or Errored.
func (s CaseStatus) Failing() bool {
	return s == StatusFailed || s == StatusErrored
}

// severity orders statuses for merging duplicate case reports.
func (s CaseStatus) severity() int {
	switch s {
	case StatusErrored:
		return 3
	case StatusFailed:
		return 2
	case StatusPassed:
		return 1
	default:
		return 0
	}
}

// CaseOutcome is the result of a single test case.
type CaseOutcome struct {
	ID         string     `json:"id"`
	Status     CaseStatus `json:"status"`
	Diagnostic string     `json:"diagnostic,omitempty"`
}

// Counts aggregates case outcomes by status.
type Counts struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
}

// Total is the number of cases counted.
func (c Counts) Total() int {
	return c.Passed + c.Failed + c.Errored + c.Skipped
}

// ExecutionResult is the structured outcome of one adapter invocation.
//
// Build it with NewExecutionResult. Values are never mutated after
// construction; a new attempt produces a new ExecutionResult.
type ExecutionResult struct {
	Mode     ExecutionMode `json:"mode"`
	Cases    []CaseOutcome `json:"cases"`
	Counts   Counts        `json:"counts"`
	Duration time.Duration `json:"duration_ns"`
	ExitCode int           `json:"exit_code"`

	// HarnessError is non-empty when the suite could not run at all.
	// It distinguishes "zero cases because the harness died" from
	// "zero cases because none are defined".
	HarnessError string `json:"harness_error,omitempty"`

	// FlakyCases lists case ids whose status disagreed across repeated
	// attempts in the same mode.
	FlakyCases []string `json:"flaky_cases,omitempty"`

	// Log is the captured invocation transcript. It is written to the
	// evidence pack, not to outcome JSON.
	Log string `json:"-"`
}

// ResultInput carries the raw material for NewExecutionResult.
type ResultInput struct {
	Mode         ExecutionMode
	Cases        []CaseOutcome
	Duration     time.Duration
	ExitCode     int
	HarnessError string
	FlakyCases   []string
	Log          string
}

// NewExecutionResult builds an ExecutionResult from in. Inputs are copied.
// Cases are sorted by id; a case id reported more than once keeps its most
// severe status (errored > failed > passed > skipped).
func NewExecutionResult(in ResultInput) ExecutionResult {
	byID := make(map[string]CaseOutcome, len(in.Cases))
	for _, c := range in.Cases {
		prev, ok := byID[c.ID]
		if !ok || c.Status.severity() > prev.Status.severity() {
			byID[c.ID] = c
		}
	}

	cases := make([]CaseOutcome, 0, len(byID))
	var counts Counts
	for _, c := range byID {
		cases = append(cases, c)
		switch c.Status {
		case StatusPassed:
			counts.Passed++
		case StatusFailed:
			counts.Failed++
		case StatusErrored:
			counts.Errored++
		case StatusSkipped:
			counts.Skipped++
		}
	}
	slices.SortFunc(cases, func(a, b CaseOutcome) int {
		return strings.Compare(a.ID, b.ID)
	})

	var flaky []string
	if len(in.FlakyCases) > 0 {
		flaky = slices.Clone(in.FlakyCases)
		slices.Sort(flaky)
		flaky = slices.Compact(flaky)
	}

	return ExecutionResult{
		Mode:         in.Mode,
		Cases:        cases,
		Counts:       counts,
		Duration:     in.Duration,
		ExitCode:     in.ExitCode,
		HarnessError: in.HarnessError,
		FlakyCases:   flaky,
		Log:          in.Log,
	}
}

// HarnessFailed reports whether the run errored at harness level.
func (r ExecutionResult) HarnessFailed() bool {
	return r.HarnessError != ""
}

// CaseIDs returns the sorted case ids.
func (r ExecutionResult) CaseIDs() []string {
	ids := make([]string, len(r.Cases))
	for i, c := range r.Cases {
		ids[i] = c.ID
	}
	return ids
}

// Case looks up a case by id.
func (r ExecutionResult) Case(id string) (CaseOutcome, bool) {
	i, ok := slices.BinarySearchFunc(r.Cases, id, func(c CaseOutcome, id string) int {
		return strings.Compare(c.ID, id)
	})
	if !ok {
		return CaseOutcome{}, false
	}
	return r.Cases[i], true
}
