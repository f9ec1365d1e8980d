// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"medley/internal/jobs"
	"medley/internal/jobstore/sqlitestore"
)

// MustOpenStore opens a sqlite job store in a temp directory and registers cleanup.
func MustOpenStore(t testing.TB) *sqlitestore.Store {
	t.Helper()

	store, err := sqlitestore.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("sqlitestore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a job record for tests using the provided store.
func NewJob(t testing.TB, store *sqlitestore.Store, jobID, ownerID string) *jobs.Record {
	t.Helper()

	record := &jobs.Record{
		JobID:     jobID,
		OwnerID:   ownerID,
		Status:    jobs.StatusInitializing,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Create(context.Background(), record); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	created, err := store.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	return created
}
