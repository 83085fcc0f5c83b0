package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewExecutionResultSortsAndCounts(t *testing.T) {
	in := []CaseOutcome{
		{ID: "c", Status: StatusSkipped},
		{ID: "a", Status: StatusPassed},
		{ID: "b", Status: StatusErrored},
		{ID: "a", Status: StatusFailed, Diagnostic: "second report"},
	}
	r := NewExecutionResult(ResultInput{Mode: ModeBaseline, Cases: in})

	assert.Equal(t, []string{"a", "b", "c"}, r.CaseIDs())
	assert.Equal(t, Counts{Passed: 0, Failed: 1, Errored: 1, Skipped: 1}, r.Counts)
	assert.Equal(t, 3, r.Counts.Total())

	c, ok := r.Case("a")
	assert.True(t, ok)
	assert.Equal(t, StatusFailed, c.Status, "most severe duplicate wins")

	_, ok = r.Case("zzz")
	assert.False(t, ok)
}

func TestNewExecutionResultCopiesInput(t *testing.T) {
	cases := []CaseOutcome{{ID: "a", Status: StatusPassed}}
	flaky := []string{"x", "x"}
	r := NewExecutionResult(ResultInput{Mode: ModeCandidate, Cases: cases, FlakyCases: flaky})

	cases[0].Status = StatusFailed
	flaky[0] = "changed"

	assert.Equal(t, StatusPassed, r.Cases[0].Status)
	assert.Equal(t, []string{"x"}, r.FlakyCases)
}

func TestHarnessFailed(t *testing.T) {
	ok := NewExecutionResult(ResultInput{Mode: ModeBaseline})
	dead := NewExecutionResult(ResultInput{Mode: ModeBaseline, HarnessError: "exec: not found"})

	assert.False(t, ok.HarnessFailed())
	assert.True(t, dead.HarnessFailed())
}

func TestModeOther(t *testing.T) {
	assert.Equal(t, ModeCandidate, ModeBaseline.Other())
	assert.Equal(t, ModeBaseline, ModeCandidate.Other())
	assert.False(t, ExecutionMode("").Valid())
}
