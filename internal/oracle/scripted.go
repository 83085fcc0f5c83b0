package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/parity/internal/ir"
)

// Step is one scripted oracle reply.
type Step struct {
	Content string
	Err     error

	// Delay holds the reply back; the call fails with a timeout error if
	// ctx ends first.
	Delay time.Duration
}

// Scripted is a deterministic Oracle. The first step answers Propose and
// the remaining steps answer successive Repair calls. Once the script runs
// out, the last step is repeated.
type Scripted struct {
	path  string
	steps []Step

	mu      sync.Mutex
	next    int
	repairs []RepairRequest
}

// NewScripted creates a Scripted oracle whose candidates live at path.
func NewScripted(path string, steps ...Step) *Scripted {
	return &Scripted{path: path, steps: steps}
}

// Propose implements Oracle.
func (s *Scripted) Propose(ctx context.Context, req ProposeRequest) (ir.SourceState, error) {
	return s.reply(ctx, "propose")
}

// Repair implements Oracle.
func (s *Scripted) Repair(ctx context.Context, req RepairRequest) (ir.SourceState, error) {
	s.mu.Lock()
	s.repairs = append(s.repairs, req)
	s.mu.Unlock()
	return s.reply(ctx, "repair")
}

// Calls returns the number of Propose and Repair calls served.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// RepairRequests returns the repair requests received, in order.
func (s *Scripted) RepairRequests() []RepairRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RepairRequest(nil), s.repairs...)
}

func (s *Scripted) reply(ctx context.Context, op string) (ir.SourceState, error) {
	s.mu.Lock()
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return ir.SourceState{}, &Error{Kind: KindRequest, Op: op, Err: fmt.Errorf("empty script")}
	}
	step := s.steps[min(s.next, len(s.steps)-1)]
	s.next++
	s.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ir.SourceState{}, classify(op, ctx.Err())
		case <-timer.C:
		}
	}
	if step.Err != nil {
		var oe *Error
		if errors.As(step.Err, &oe) {
			return ir.SourceState{}, oe
		}
		return ir.SourceState{}, classify(op, step.Err)
	}
	return ir.NewSourceState(s.path, step.Content), nil
}
