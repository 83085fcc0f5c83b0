package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parity/internal/engine"
	"github.com/roach88/parity/internal/evidence"
	"github.com/roach88/parity/internal/ir"
	"github.com/roach88/parity/internal/oracle"
)

func newRunOptions(p *project, format string, steps ...oracle.Step) *RunOptions {
	return &RunOptions{
		RootOptions: &RootOptions{Format: format},
		ConfigFlags: ConfigFlags{ConfigPath: p.config},
		Budget:      -1,
		Oracle:      oracle.NewScripted(billingPath, steps...),
		Runner:      p.runner(),
		RunIDs:      engine.NewFixedGenerator("run-0001", "run-0002"),
	}
}

func TestRun_EquivalentAtFirstAttempt(t *testing.T) {
	p := newProject(t)
	opts := newRunOptions(p, "text", oracle.Step{Content: goodV2})
	cmd, out, _ := testCommand()

	err := runRun(opts, cmd)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Run run-0001")
	assert.Contains(t, out.String(), "Status:   succeeded")
	assert.Contains(t, out.String(), "Verdict:  equivalent")
	assert.Contains(t, out.String(), "Attempts: 1 (0 of 5 repairs)")
	assert.Equal(t, goodV2, p.read(t, billingPath))

	packDir := filepath.Join(p.root, "artifacts", "run-0001")
	for _, name := range []string{evidence.FileOutcome, evidence.FileEvidence, evidence.FileImpact, evidence.FileDiff} {
		assert.FileExists(t, filepath.Join(packDir, name))
	}
	assert.Contains(t, out.String(), "Evidence: "+packDir)
}

func TestRun_ExhaustedBudgetRestoresSource(t *testing.T) {
	p := newProject(t)
	opts := newRunOptions(p, "json", oracle.Step{Content: buggyV2})
	opts.Budget = 1
	cmd, out, _ := testCommand()

	err := runRun(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ir.StatusExhaustedBudget, resp.Data.Status)
	assert.Equal(t, 2, resp.Data.Attempts)
	assert.Equal(t, 1, resp.Data.Repairs)
	assert.Equal(t, ir.Diverged, resp.Data.Classification)
	require.NotNil(t, resp.Data.Error)
	assert.Equal(t, "BUDGET_EXHAUSTED", resp.Data.Error.Code)
	assert.NotEmpty(t, resp.Data.Diff)
	require.NotNil(t, resp.Data.DiffStat)
	assert.Equal(t, 1, resp.Data.DiffStat.Files)

	assert.Equal(t, billingV1, p.read(t, billingPath))
}

func TestRun_BudgetFlagOverridesConfig(t *testing.T) {
	p := newProject(t)
	opts := newRunOptions(p, "json", oracle.Step{Content: buggyV2})
	opts.Budget = 0
	cmd, out, _ := testCommand()

	err := runRun(opts, cmd)
	require.Error(t, err)

	var resp struct {
		Data RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, 0, resp.Data.MaxRepairs)
	assert.Equal(t, 1, resp.Data.Attempts)
	assert.Equal(t, 1, opts.Oracle.(*oracle.Scripted).Calls())
}

func TestRun_DryRunNeedsNoOracle(t *testing.T) {
	p := newProject(t)
	opts := newRunOptions(p, "text")
	opts.Oracle = nil
	opts.Runner = nil
	opts.DryRun = true
	cmd, out, _ := testCommand()

	err := runRun(opts, cmd)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Status:   succeeded")
	assert.Contains(t, out.String(), "Dry run:")
	assert.Contains(t, out.String(), "Risk:     low")
	assert.Equal(t, billingV1, p.read(t, billingPath))
}

func TestRun_RecordsHistory(t *testing.T) {
	p := newProject(t)
	db := filepath.Join(t.TempDir(), "parity.db")

	opts := newRunOptions(p, "text", oracle.Step{Content: buggyV2}, oracle.Step{Content: goodV2})
	opts.Database = db
	cmd, _, _ := testCommand()
	require.NoError(t, runRun(opts, cmd))

	histCmd, out, _ := testCommand()
	err := runHistory(&HistoryOptions{RootOptions: &RootOptions{Format: "text"}, Database: db, Limit: 20}, "", histCmd)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "run-0001")
	assert.Contains(t, out.String(), "succeeded")
	assert.Contains(t, out.String(), "compute_total")
}

func TestRun_WritesMetricsFile(t *testing.T) {
	p := newProject(t)
	metricsPath := filepath.Join(t.TempDir(), "parity.prom")

	opts := newRunOptions(p, "text", oracle.Step{Content: goodV2})
	opts.MetricsFile = metricsPath
	cmd, _, _ := testCommand()
	require.NoError(t, runRun(opts, cmd))

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `parity_runs_total{status="succeeded"} 1`)
	assert.Contains(t, string(data), `parity_attempts_total{classification="equivalent"} 1`)
}

func TestRun_ArtifactsFlagOverridesConfig(t *testing.T) {
	p := newProject(t)
	artifacts := filepath.Join(t.TempDir(), "packs")

	opts := newRunOptions(p, "text", oracle.Step{Content: goodV2})
	opts.Artifacts = artifacts
	cmd, _, _ := testCommand()
	require.NoError(t, runRun(opts, cmd))

	assert.FileExists(t, filepath.Join(artifacts, "run-0001", evidence.FileEvidence))
	assert.NoDirExists(t, filepath.Join(p.root, "artifacts"))
}

func TestRun_SymbolNotFoundIsFatal(t *testing.T) {
	p := newProject(t)
	opts := newRunOptions(p, "text", oracle.Step{Content: goodV2})
	opts.Symbol = "compute_grand_total"
	cmd, out, _ := testCommand()

	err := runRun(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "fatal_error")
	assert.Contains(t, out.String(), "ANALYSIS_ERROR")
	assert.Equal(t, 0, opts.Oracle.(*oracle.Scripted).Calls())
}

func TestRun_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   string
	}{
		{"missing_file", "does-not-exist.yaml", "failed to load config"},
		{"missing_target", "symbol: compute_total\n", "failed to load config"},
		{"bad_budget", "target: a.py\nsymbol: f\nbudget:\n  max_repairs: -3\n", "failed to load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, tt.config)
			if tt.name != "missing_file" {
				path = filepath.Join(dir, "parity.yaml")
				writeFile(t, dir, "parity.yaml", tt.config)
			}
			opts := &RunOptions{
				RootOptions: &RootOptions{Format: "json"},
				ConfigFlags: ConfigFlags{ConfigPath: path},
				Budget:      -1,
			}
			cmd, out, _ := testCommand()

			err := runRun(opts, cmd)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, ErrCodeConfig, resp.Error.Code)
		})
	}
}

func TestRun_SuiteRequiredOutsideDryRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, billingPath, billingV1)
	writeFile(t, dir, "parity.yaml", "target: app/billing.py\nsymbol: compute_total\n")

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		ConfigFlags: ConfigFlags{ConfigPath: filepath.Join(dir, "parity.yaml")},
		Budget:      -1,
		Oracle:      oracle.NewScripted(billingPath, oracle.Step{Content: goodV2}),
	}
	cmd, _, _ := testCommand()

	err := runRun(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to set up suite")
}
