package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/parity/internal/ir"
)

// RunError is a failure detected while driving a run. It is converted into
// the ir.Failure recorded on the outcome.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// State is the machine state the run was in when the error occurred.
	State ir.RunState

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeScanWarning is used for non-fatal scan degradation.
	ErrCodeScanWarning RunErrorCode = "SCAN_WARNING"

	// ErrCodeAnalysis indicates the symbol could not be located.
	ErrCodeAnalysis RunErrorCode = "ANALYSIS_ERROR"

	// ErrCodeHarness indicates the suite could not be run at all.
	ErrCodeHarness RunErrorCode = "HARNESS_ERROR"

	// ErrCodeOracle indicates the oracle failed, timed out or replied with
	// malformed source.
	ErrCodeOracle RunErrorCode = "ORACLE_ERROR"

	// ErrCodeSourceControl indicates a snapshot, apply, restore or
	// finalize failure.
	ErrCodeSourceControl RunErrorCode = "SOURCE_CONTROL_ERROR"

	// ErrCodeBudgetExhausted indicates the repair budget ran out.
	ErrCodeBudgetExhausted RunErrorCode = "BUDGET_EXHAUSTED"

	// ErrCodeCancelled indicates the caller cancelled the run.
	ErrCodeCancelled RunErrorCode = "CANCELLED"

	// ErrCodeInvalidOutcome indicates the assembled outcome failed its own
	// consistency checks.
	ErrCodeInvalidOutcome RunErrorCode = "INVALID_OUTCOME"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.State != "" {
		return fmt.Sprintf("%s: %s (state=%s)", e.Code, msg, e.State)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Failure converts e into the record stored on a RunOutcome.
func (e *RunError) Failure() *ir.Failure {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	return &ir.Failure{Code: string(e.Code), State: e.State, Message: msg}
}

func newRunError(code RunErrorCode, state ir.RunState, err error, format string, args ...any) *RunError {
	return &RunError{Code: code, State: state, Message: fmt.Sprintf(format, args...), Err: err}
}

func hasCode(err error, code RunErrorCode) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsAnalysisError returns true if the symbol could not be located.
func IsAnalysisError(err error) bool {
	return hasCode(err, ErrCodeAnalysis)
}

// IsOracleError returns true if the oracle failed.
func IsOracleError(err error) bool {
	return hasCode(err, ErrCodeOracle)
}

// IsSourceControlError returns true if a source control operation failed.
func IsSourceControlError(err error) bool {
	return hasCode(err, ErrCodeSourceControl)
}

// IsCancelled returns true if the run was cancelled.
func IsCancelled(err error) bool {
	return hasCode(err, ErrCodeCancelled)
}

// IsBudgetError returns true if the error is a budget exhaustion.
// Matches both RunError with ErrCodeBudgetExhausted and BudgetExhaustedError.
func IsBudgetError(err error) bool {
	if hasCode(err, ErrCodeBudgetExhausted) {
		return true
	}
	return IsBudgetExhaustedError(err)
}
