package evidence

import (
	"time"

	"github.com/roach88/parity/internal/ir"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func result(mode ir.ExecutionMode, d time.Duration, log string, cases ...ir.CaseOutcome) ir.ExecutionResult {
	return ir.NewExecutionResult(ir.ResultInput{Mode: mode, Cases: cases, Duration: d, Log: log})
}

// succeededOutcome is a run that verified after one repair.
func succeededOutcome() ir.RunOutcome {
	sym := ir.Symbol{Module: "app/billing.py", Name: "compute_total"}
	pass := func(id string) ir.CaseOutcome { return ir.CaseOutcome{ID: id, Status: ir.StatusPassed} }
	const total = "tests/test_billing.py::test_total"
	const empty = "tests/test_billing.py::test_empty"

	diverged := ir.Verdict{
		Classification: ir.Diverged,
		Reason:         "1 case(s) differ between modes",
		Divergences: []ir.Divergence{{
			CaseID:     total,
			Baseline:   ir.StatusPassed,
			Candidate:  ir.StatusFailed,
			FailedIn:   []ir.ExecutionMode{ir.ModeCandidate},
			Diagnostic: "assert 41 == 42",
		}},
	}
	original := ir.NewSourceState("app/billing.py", "def compute_total(items):\n    return sum(items)\n")
	final := ir.NewSourceState("app/billing.py", "def compute_total(items):\n    return _sum_items(items)\n")

	return ir.RunOutcome{
		SchemaVersion: ir.SchemaVersion,
		RunID:         "0190f3a2-7c1e-7000-8000-000000000001",
		Status:        ir.StatusSucceeded,
		Symbol:        sym,
		MaxRepairs:    3,
		Report: &ir.ImpactReport{
			Symbol:         sym,
			DefinitionFile: "app/billing.py",
			Files: []ir.FileImpact{
				{Path: "app/billing.py", IsDefinition: true, References: 2, Sites: []ir.UsageSite{
					{Path: "app/billing.py", Lines: []int{1}},
					{Path: "app/billing.py", Container: "total", Lines: []int{8}},
				}},
				{Path: "app/checkout.py", References: 2, Sites: []ir.UsageSite{
					{Path: "app/checkout.py", Container: "checkout", Lines: []int{5, 7}},
				}},
				{Path: "tests/test_billing.py", IsTest: true, References: 2, Sites: []ir.UsageSite{
					{Path: "tests/test_billing.py", Container: "test_total", Lines: []int{5, 9}},
				}},
			},
			CallSites:       2,
			FileCount:       3,
			References:      6,
			TestEvidence:    []string{"tests/test_billing.py"},
			Risk:            ir.RiskLow,
			Thresholds:      ir.RiskThresholds{Low: 3, High: 10, FanOut: 25},
			Warnings:        []ir.ScanWarning{{Path: "app/broken.py", Reason: "syntax error at line 1"}},
			LowConfidence:   true,
			ConfidenceNotes: []string{"1 file(s) could not be scanned"},
		},
		Attempts: []ir.RepairAttempt{
			{
				Index:           0,
				StartedAt:       t0.Add(2 * time.Second),
				FinishedAt:      t0.Add(10 * time.Second),
				CandidateDigest: "3f9a1c0d7e2b44aa0000000000000000",
				Baseline:        result(ir.ModeBaseline, 1200*time.Millisecond, "baseline log 0\n", pass(total), pass(empty)),
				Candidate: result(ir.ModeCandidate, 1300*time.Millisecond, "candidate log 0\n",
					ir.CaseOutcome{ID: total, Status: ir.StatusFailed, Diagnostic: "assert 41 == 42"}, pass(empty)),
				Verdict: diverged,
			},
			{
				Index:           1,
				Trigger:         &diverged,
				StartedAt:       t0.Add(20 * time.Second),
				FinishedAt:      t0.Add(30 * time.Second),
				CandidateDigest: "9c41e0b2aa17ffee0000000000000000",
				Baseline:        result(ir.ModeBaseline, 1200*time.Millisecond, "", pass(total), pass(empty)),
				Candidate:       result(ir.ModeCandidate, 1250*time.Millisecond, "candidate log 1\n", pass(total), pass(empty)),
				Verdict:         ir.Verdict{Classification: ir.Equivalent, Reason: "2 case(s) agree"},
			},
		},
		Original:   &original,
		Final:      &final,
		Diff:       "--- a/app/billing.py\n+++ b/app/billing.py\n@@ -1,2 +1,2 @@\n def compute_total(items):\n-    return sum(items)\n+    return _sum_items(items)\n",
		StartedAt:  t0,
		FinishedAt: t0.Add(42 * time.Second),
	}
}

// fatalOutcome is a run that failed while scoping.
func fatalOutcome() ir.RunOutcome {
	return ir.RunOutcome{
		SchemaVersion: ir.SchemaVersion,
		RunID:         "run-fatal",
		Status:        ir.StatusFatalError,
		Error: &ir.Failure{
			Code:    "ANALYSIS_ERROR",
			State:   ir.StateScoping,
			Message: "analysis: symbol missing_fn: no usages found under .",
		},
		Symbol:     ir.Symbol{Name: "missing_fn"},
		MaxRepairs: 5,
		StartedAt:  t0,
		FinishedAt: t0.Add(250 * time.Millisecond),
	}
}
