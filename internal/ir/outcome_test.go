package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func passing(mode ExecutionMode) ExecutionResult {
	return NewExecutionResult(ResultInput{Mode: mode, Cases: []CaseOutcome{{ID: "a", Status: StatusPassed}}})
}

func attempt(i int, v Classification) RepairAttempt {
	a := RepairAttempt{
		Index:           i,
		StartedAt:       t0.Add(time.Duration(2*i) * time.Second),
		FinishedAt:      t0.Add(time.Duration(2*i+1) * time.Second),
		CandidateDigest: SourceDigest("candidate"),
		Baseline:        passing(ModeBaseline),
		Candidate:       passing(ModeCandidate),
		Verdict:         Verdict{Classification: v},
	}
	return a
}

func chain(classes ...Classification) []RepairAttempt {
	out := make([]RepairAttempt, len(classes))
	for i, c := range classes {
		out[i] = attempt(i, c)
		if i > 0 {
			trigger := out[i-1].Verdict
			out[i].Trigger = &trigger
		}
	}
	return out
}

func TestRunOutcomeValidate(t *testing.T) {
	report := &ImpactReport{Symbol: Symbol{Name: "f"}, Risk: RiskLow}

	tests := []struct {
		name    string
		outcome RunOutcome
		wantErr string
	}{
		{
			name: "succeeded first try",
			outcome: RunOutcome{
				RunID: "r", Status: StatusSucceeded, MaxRepairs: 2, Report: report,
				Attempts: chain(Equivalent), StartedAt: t0, FinishedAt: t0.Add(time.Minute),
			},
		},
		{
			name: "exhausted after budget",
			outcome: RunOutcome{
				RunID: "r", Status: StatusExhaustedBudget, MaxRepairs: 1, Report: report,
				Attempts: chain(Diverged, Diverged), StartedAt: t0, FinishedAt: t0.Add(time.Minute),
			},
		},
		{
			name: "dry run without attempts",
			outcome: RunOutcome{
				RunID: "r", Status: StatusSucceeded, DryRun: true, Report: report,
				StartedAt: t0, FinishedAt: t0,
			},
		},
		{
			name: "exhausted before budget",
			outcome: RunOutcome{
				RunID: "r", Status: StatusExhaustedBudget, MaxRepairs: 3, Report: report,
				Attempts: chain(Diverged, Diverged), StartedAt: t0, FinishedAt: t0.Add(time.Minute),
			},
			wantErr: "exhausted run used 1 of 3 repairs",
		},
		{
			name: "too many attempts",
			outcome: RunOutcome{
				RunID: "r", Status: StatusExhaustedBudget, MaxRepairs: 0, Report: report,
				Attempts: chain(Diverged, Diverged), StartedAt: t0, FinishedAt: t0.Add(time.Minute),
			},
			wantErr: "exceed budget",
		},
		{
			name: "fatal without error",
			outcome: RunOutcome{
				RunID: "r", Status: StatusFatalError, StartedAt: t0, FinishedAt: t0,
			},
			wantErr: "fatal_error run has no error",
		},
		{
			name: "succeeded on diverged verdict",
			outcome: RunOutcome{
				RunID: "r", Status: StatusSucceeded, MaxRepairs: 2, Report: report,
				Attempts: chain(Diverged), StartedAt: t0, FinishedAt: t0.Add(time.Minute),
			},
			wantErr: "does not end in an equivalent verdict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.outcome.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunOutcomeValidateDetectsOverlap(t *testing.T) {
	attempts := chain(Diverged, Equivalent)
	attempts[1].StartedAt = attempts[0].FinishedAt.Add(-time.Millisecond)

	o := RunOutcome{
		RunID: "r", Status: StatusSucceeded, MaxRepairs: 3,
		Report:   &ImpactReport{},
		Attempts: attempts, StartedAt: t0, FinishedAt: t0.Add(time.Minute),
	}
	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempt 1 overlaps attempt 0")
}

func TestRunOutcomeValidateDetectsSwappedModes(t *testing.T) {
	attempts := chain(Equivalent)
	attempts[0].Baseline, attempts[0].Candidate = attempts[0].Candidate, attempts[0].Baseline

	o := RunOutcome{
		RunID: "r", Status: StatusSucceeded, MaxRepairs: 1, Report: &ImpactReport{},
		Attempts: attempts, StartedAt: t0, FinishedAt: t0,
	}
	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `baseline result has mode "candidate"`)
}

func TestFinalPair(t *testing.T) {
	o := RunOutcome{Attempts: chain(Diverged, Equivalent)}
	b, c, ok := o.FinalPair()
	require.True(t, ok)
	assert.Equal(t, ModeBaseline, b.Mode)
	assert.Equal(t, ModeCandidate, c.Mode)
	assert.Equal(t, 1, o.Repairs())

	_, _, ok = RunOutcome{}.FinalPair()
	assert.False(t, ok)
}
