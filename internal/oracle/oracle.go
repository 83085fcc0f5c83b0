// Package oracle adapts code-generation services to the repair loop.
//
// An Oracle turns an impact report and the current source into a candidate
// (Propose), and turns a failing verdict into a revised candidate (Repair).
// Every reply is a complete source file; partial patches are not accepted.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/parity/internal/ir"
)

// ProposeRequest asks for the first candidate of a run.
type ProposeRequest struct {
	Symbol  ir.Symbol
	Report  ir.ImpactReport
	Current ir.SourceState

	// Goal is the free-form refactoring instruction from the run config.
	Goal string

	// Toggle is the environment variable that selects the candidate.
	Toggle string
}

// RepairRequest asks for a revision of a candidate that did not verify.
type RepairRequest struct {
	Symbol    ir.Symbol
	Report    ir.ImpactReport
	Candidate ir.SourceState
	Verdict   ir.Verdict
	Baseline  ir.ExecutionResult
	Result    ir.ExecutionResult

	// Iteration is the 1-based repair number.
	Iteration int
	Toggle    string
}

// Oracle produces candidate source states. Implementations must honor ctx
// and return an *Error for every failure.
type Oracle interface {
	Propose(ctx context.Context, req ProposeRequest) (ir.SourceState, error)
	Repair(ctx context.Context, req RepairRequest) (ir.SourceState, error)
}

// ErrorKind classifies oracle failures.
type ErrorKind string

const (
	// KindRequest means the service call itself failed.
	KindRequest ErrorKind = "request"
	// KindTimeout means the call exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindMalformed means the reply was empty or not valid source.
	KindMalformed ErrorKind = "malformed"
)

// Error is returned by every Oracle implementation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is an oracle reply that failed the
// syntax gate or was empty.
func IsMalformed(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Kind == KindMalformed
}

// IsTimeout reports whether err is an oracle deadline failure.
func IsTimeout(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Kind == KindTimeout
}

// classify wraps a transport error with the matching kind.
func classify(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindRequest, Op: op, Err: err}
}
