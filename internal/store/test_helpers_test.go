package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/parity/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testResult(mode ir.ExecutionMode, cases ...ir.CaseOutcome) ir.ExecutionResult {
	return ir.NewExecutionResult(ir.ResultInput{
		Mode:     mode,
		Cases:    cases,
		Duration: 1500 * time.Millisecond,
	})
}

// createTestOutcome builds a succeeded run with one repair.
func createTestOutcome(runID string, started time.Time) ir.RunOutcome {
	original := ir.NewSourceState("billing/invoice.py", "def total(items):\n    return 0\n")
	first := ir.NewSourceState("billing/invoice.py", "def total(items):\n    return 1\n")
	final := ir.NewSourceState("billing/invoice.py", "def total(items):\n    return 2\n")

	diverged := ir.Verdict{
		Classification: ir.Diverged,
		Reason:         "1 case differs between modes",
		Divergences: []ir.Divergence{{
			CaseID:     "tests/test_invoice.py::test_discount",
			Baseline:   ir.StatusPassed,
			Candidate:  ir.StatusFailed,
			FailedIn:   []ir.ExecutionMode{ir.ModeCandidate},
			Diagnostic: "assert 90 == 91 <tax>",
		}},
	}
	pass := ir.CaseOutcome{ID: "tests/test_invoice.py::test_discount", Status: ir.StatusPassed}
	fail := ir.CaseOutcome{ID: "tests/test_invoice.py::test_discount", Status: ir.StatusFailed, Diagnostic: "assert 90 == 91 <tax>"}
	other := ir.CaseOutcome{ID: "tests/test_invoice.py::test_empty", Status: ir.StatusPassed}

	report := &ir.ImpactReport{
		Symbol:         ir.Symbol{Module: "billing/invoice.py", Name: "total"},
		DefinitionFile: "billing/invoice.py",
		Files: []ir.FileImpact{
			{Path: "billing/invoice.py", IsDefinition: true, References: 1,
				Sites: []ir.UsageSite{{Path: "billing/invoice.py", Container: "total", Lines: []int{1}}}},
			{Path: "tests/test_invoice.py", IsTest: true, References: 2,
				Sites: []ir.UsageSite{{Path: "tests/test_invoice.py", Container: "test_discount", Lines: []int{3, 5}}}},
		},
		CallSites:    1,
		FileCount:    2,
		References:   3,
		TestEvidence: []string{"tests/test_invoice.py"},
		Risk:         ir.RiskLow,
		Thresholds:   ir.RiskThresholds{Low: 3, High: 10, FanOut: 25},
		Warnings:     []ir.ScanWarning{{Path: "broken.py", Reason: "syntax error at line 1, column 4: missing )"}},
	}

	return ir.RunOutcome{
		SchemaVersion: ir.SchemaVersion,
		RunID:         runID,
		Status:        ir.StatusSucceeded,
		Symbol:        report.Symbol,
		MaxRepairs:    5,
		Report:        report,
		Attempts: []ir.RepairAttempt{
			{
				Index:           0,
				StartedAt:       started.Add(time.Second),
				FinishedAt:      started.Add(2 * time.Second),
				CandidateDigest: first.Digest,
				Baseline:        testResult(ir.ModeBaseline, pass, other),
				Candidate:       testResult(ir.ModeCandidate, fail, other),
				Verdict:         diverged,
			},
			{
				Index:           1,
				Trigger:         &diverged,
				StartedAt:       started.Add(3 * time.Second),
				FinishedAt:      started.Add(4*time.Second + 250*time.Nanosecond),
				CandidateDigest: final.Digest,
				Baseline:        testResult(ir.ModeBaseline, pass, other),
				Candidate:       testResult(ir.ModeCandidate, pass, other),
				Verdict:         ir.Verdict{Classification: ir.Equivalent, Reason: "2 cases agree"},
			},
		},
		Original:   &original,
		Final:      &final,
		Diff:       "--- a/billing/invoice.py\n+++ b/billing/invoice.py\n",
		StartedAt:  started,
		FinishedAt: started.Add(5 * time.Second),
	}
}
