package store

import (
	"context"

	"github.com/nhle/mailsweep/internal/model"
)

// Store defines the persistence interface for the cross-run history:
// scan/unsubscribe runs and per-domain unsubscribe outcomes.
type Store interface {
	// StartRun records a run that has begun.
	StartRun(ctx context.Context, run model.Run) error

	// FinishRun updates a run's counters and finish time.
	FinishRun(ctx context.Context, run model.Run) error

	// RecordOutcome appends one unsubscribe outcome row.
	RecordOutcome(ctx context.Context, o model.Outcome) error

	// Runs returns all recorded runs, newest first.
	Runs(ctx context.Context) ([]model.Run, error)

	// Outcomes returns the outcomes recorded for a run, in insertion order.
	Outcomes(ctx context.Context, runID string) ([]model.Outcome, error)

	Close() error
}
