package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parity/internal/ir"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(RunResult{RunID: "run-0001", Status: ir.StatusSucceeded})
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-0001", resp.Data.RunID)
	assert.Equal(t, ir.StatusSucceeded, resp.Data.Status)
}

func TestOutputFormatter_JSONDoesNotEscapeHTML(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"diff": "if a < b && c > d"}))
	assert.Contains(t, buf.String(), "if a < b && c > d")
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeConfig, "target is required", nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
	assert.Equal(t, "target is required", resp.Error.Message)
	assert.Nil(t, resp.Data)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"path": "parity.yaml", "field": "budget.max_repairs"}
	require.NoError(t, formatter.Error(ErrCodeConfig, "invalid config", details))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Success("modes are equivalent"))
	assert.Equal(t, "modes are equivalent\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error(ErrCodeStore, "database is locked", map[string]string{"path": "parity.db"}))
			assert.Contains(t, buf.String(), "Error [E002]: database is locked")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details:")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_TextHasNoEscapeCodes(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	writeRunText(formatter, RunResult{
		RunID:          "run-0001",
		Status:         ir.StatusExhaustedBudget,
		Risk:           ir.RiskHigh,
		Classification: ir.Diverged,
	})
	assert.NotContains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "Status:   exhausted_budget")
	assert.Contains(t, buf.String(), "Risk:     high")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		verbose bool
		wantOut string
		wantErr string
	}{
		{"verbose_text", "text", true, "loaded parity.yaml\n", ""},
		{"verbose_json_goes_to_err_writer", "json", true, "", "loaded parity.yaml\n"},
		{"quiet", "text", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: tt.format, Writer: out, Verbose: tt.verbose}
			if tt.format == "json" {
				formatter.ErrWriter = errOut
			}

			formatter.VerboseLog("loaded %s", "parity.yaml")

			assert.Equal(t, tt.wantOut, out.String())
			assert.Equal(t, tt.wantErr, errOut.String())
		})
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("disk full")

	wrapped := WrapExitError(ExitCommandError, "failed to record evidence", cause)
	assert.Equal(t, "failed to record evidence: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)

	plain := NewExitError(ExitFailure, "run run-0001 ended exhausted_budget")
	assert.Equal(t, "run run-0001 ended exhausted_budget", plain.Error())
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain_error", errors.New("boom"), ExitFailure},
		{"exit_error", NewExitError(ExitCommandError, "bad flags"), ExitCommandError},
		{"wrapped_exit_error", errors.Join(errors.New("ctx"), NewExitError(ExitFailure, "diverged")), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		status ir.RunStatus
		want   int
	}{
		{ir.StatusSucceeded, ExitSuccess},
		{ir.StatusExhaustedBudget, ExitFailure},
		{ir.StatusCancelled, ExitFailure},
		{ir.StatusFatalError, ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.status))
		})
	}
}
