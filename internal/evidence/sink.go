// Package evidence turns a terminal RunOutcome into an evidence pack and
// hands it to one or more sinks.
package evidence

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/parity/internal/ir"
	"github.com/roach88/parity/internal/store"
)

// Sink receives the terminal outcome of a run exactly once.
type Sink interface {
	Record(ctx context.Context, o ir.RunOutcome) error
}

// Multi records to every sink in order. A failing sink does not stop the
// rest; all failures are joined.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, o ir.RunOutcome) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StoreSink records outcomes in the SQLite store.
type StoreSink struct {
	Store *store.Store
}

// Record implements Sink. Recording a run id twice is a no-op.
func (s StoreSink) Record(ctx context.Context, o ir.RunOutcome) error {
	if _, err := s.Store.WriteOutcome(ctx, o); err != nil {
		return fmt.Errorf("evidence: store: %w", err)
	}
	return nil
}
