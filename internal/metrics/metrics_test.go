package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parity/internal/ir"
)

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.RunFinished(ir.StatusSucceeded)
	r.RunFinished(ir.StatusSucceeded)
	r.RunFinished(ir.StatusExhaustedBudget)
	r.AttemptFinished(ir.Verdict{Classification: ir.Diverged})
	r.SuiteRan(ir.NewExecutionResult(ir.ResultInput{Mode: ir.ModeBaseline, Duration: 3 * time.Second}))
	r.SuiteRan(ir.NewExecutionResult(ir.ResultInput{Mode: ir.ModeCandidate, HarnessError: "boom"}))
	r.Scanned(42)
	r.OracleCalled("propose", time.Second, nil)
	r.OracleCalled("repair", time.Second, errors.New("timeout"))

	path := filepath.Join(t.TempDir(), "parity.prom")
	require.NoError(t, r.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	for _, want := range []string{
		`parity_runs_total{status="succeeded"} 2`,
		`parity_runs_total{status="exhausted_budget"} 1`,
		`parity_attempts_total{classification="diverged"} 1`,
		`parity_suite_duration_seconds_count{mode="baseline"} 1`,
		`parity_harness_errors_total{mode="candidate"} 1`,
		`parity_scan_files_sum 42`,
		`parity_oracle_duration_seconds_count{op="repair",result="error"} 1`,
	} {
		assert.Contains(t, text, want)
	}
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	r.RunFinished(ir.StatusSucceeded)
	r.AttemptFinished(ir.Verdict{})
	r.SuiteRan(ir.ExecutionResult{})
	r.Scanned(1)
	r.OracleCalled("propose", 0, nil)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}
