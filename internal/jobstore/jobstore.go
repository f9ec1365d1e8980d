// Package jobstore persists job records. Backends exist for SQLite (local
// operation) and DynamoDB (cloud operation); both apply attribute-level
// patches and enforce status transition legality.
package jobstore

import (
	"context"
	"fmt"

	"medley/internal/jobs"
)

// Store is the persistence surface for job records.
type Store interface {
	// Create inserts a new record. The job identifier must be unused.
	Create(ctx context.Context, record *jobs.Record) error
	// Get fetches a record by job identifier.
	Get(ctx context.Context, jobID string) (*jobs.Record, error)
	// Apply patches a record attribute by attribute and returns the
	// post-patch state. Status changes are validated against the
	// lifecycle graph.
	Apply(ctx context.Context, jobID string, patch jobs.Update) (*jobs.Record, error)
	// FindByOperationID locates the record bound to an external analysis
	// operation identifier.
	FindByOperationID(ctx context.Context, operationID string) (*jobs.Record, error)
	// List returns records owned by ownerID, or every record when
	// ownerID is empty, newest first.
	List(ctx context.Context, ownerID string) ([]*jobs.Record, error)
	// ListByStatus returns records in any of the given statuses, oldest
	// first, so pollers pick up work in arrival order.
	ListByStatus(ctx context.Context, statuses ...jobs.Status) ([]*jobs.Record, error)
	// Close releases backend resources.
	Close() error
}

// CheckTransition validates a status patch against the current status.
// Re-asserting the current status is a no-op and always legal; that keeps
// patches idempotent under retry.
func CheckTransition(current jobs.Status, patch jobs.Update) error {
	if patch.Status == nil || *patch.Status == current {
		return nil
	}
	if !jobs.CanTransition(current, *patch.Status) {
		return jobs.Wrap(jobs.ErrValidation, "", "apply update",
			fmt.Sprintf("illegal transition %s -> %s", current, *patch.Status), nil)
	}
	return nil
}
