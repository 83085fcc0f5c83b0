package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxRepairs is the default number of repair iterations per run.
const DefaultMaxRepairs = 5

// BudgetEnforcer counts repair iterations against a fixed limit.
//
// Attempt 0 validates the oracle's proposal and is free. Every repair
// consumes one unit, so a run validates at most max+1 candidates.
//
// Not safe for concurrent use; it lives inside a single run.
type BudgetEnforcer struct {
	max     int
	current int
}

// NewBudgetEnforcer creates an enforcer allowing max repairs. A negative max
// is treated as zero.
func NewBudgetEnforcer(max int) *BudgetEnforcer {
	if max < 0 {
		max = 0
	}
	return &BudgetEnforcer{max: max}
}

// Check consumes one repair. It returns *BudgetExhaustedError, without
// consuming, when the budget is already spent.
func (b *BudgetEnforcer) Check(runID string) error {
	if b.current >= b.max {
		return &BudgetExhaustedError{RunID: runID, Repairs: b.current, Limit: b.max}
	}
	b.current++
	return nil
}

// Exhausted reports whether no repairs remain.
func (b *BudgetEnforcer) Exhausted() bool {
	return b.current >= b.max
}

// Remaining returns the number of repairs left.
func (b *BudgetEnforcer) Remaining() int {
	return b.max - b.current
}

// Current returns the number of repairs consumed.
func (b *BudgetEnforcer) Current() int {
	return b.current
}

// Max returns the configured limit.
func (b *BudgetEnforcer) Max() int {
	return b.max
}

// Reset clears the consumed count.
func (b *BudgetEnforcer) Reset() {
	b.current = 0
}

// BudgetExhaustedError reports a repair requested after the budget ran out.
type BudgetExhaustedError struct {
	RunID   string
	Repairs int
	Limit   int
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("run %s exhausted repair budget: %d of %d repairs used", e.RunID, e.Repairs, e.Limit)
}

// IsBudgetExhaustedError returns true if err is a *BudgetExhaustedError.
func IsBudgetExhaustedError(err error) bool {
	var be *BudgetExhaustedError
	return errors.As(err, &be)
}
