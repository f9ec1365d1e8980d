package sqlitestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"medley/internal/jobs"
	"medley/internal/testsupport"
)

func TestCreateAndGet(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()

	record := testsupport.NewJob(t, store, "job-1", "user-a")
	if record.Status != jobs.StatusInitializing {
		t.Errorf("status = %s", record.Status)
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	fetched, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.OwnerID != "user-a" {
		t.Errorf("owner = %q", fetched.OwnerID)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	_, err := store.Get(context.Background(), "absent")
	if !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyPatchesOnlyGivenAttributes(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	testsupport.NewJob(t, store, "job-2", "user-a")

	updated, err := store.Apply(ctx, "job-2", jobs.Update{
		Filename:    jobs.StringPtr("clip.mp4"),
		RawLocation: jobs.StringPtr("file://media/raw-media/clip.mp4"),
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if updated.Filename != "clip.mp4" {
		t.Errorf("filename = %q", updated.Filename)
	}
	if updated.OwnerID != "user-a" {
		t.Errorf("untouched attribute changed: owner = %q", updated.OwnerID)
	}
	if updated.Status != jobs.StatusInitializing {
		t.Errorf("untouched status changed: %s", updated.Status)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	testsupport.NewJob(t, store, "job-3", "user-a")

	patch := jobs.Update{Status: jobs.StatusPtr(jobs.StatusPreprocessed), Filename: jobs.StringPtr("a.mp4")}
	first, err := store.Apply(ctx, "job-3", patch)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	second, err := store.Apply(ctx, "job-3", patch)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if first.Status != second.Status || first.Filename != second.Filename {
		t.Errorf("repeat patch diverged: %+v vs %+v", first, second)
	}
}

func TestApplyRejectsIllegalTransition(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	testsupport.NewJob(t, store, "job-4", "user-a")

	_, err := store.Apply(ctx, "job-4", jobs.Update{Status: jobs.StatusPtr(jobs.StatusCompleted)})
	if !errors.Is(err, jobs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApplyFailedFromAnyNonTerminal(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	testsupport.NewJob(t, store, "job-5", "user-a")

	now := time.Now().UTC()
	updated, err := store.Apply(ctx, "job-5", jobs.Update{
		Status: jobs.StatusPtr(jobs.StatusFailed),
		ErrorInfo: &jobs.ErrorInfo{
			Message:   "preprocess exploded",
			Category:  jobs.CategoryServerError,
			Timestamp: now,
		},
		FailedAt: jobs.TimePtr(now),
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if updated.Status != jobs.StatusFailed {
		t.Errorf("status = %s", updated.Status)
	}
	if updated.ErrorInfo == nil || updated.ErrorInfo.Category != jobs.CategoryServerError {
		t.Errorf("error info = %+v", updated.ErrorInfo)
	}
	if updated.FailedAt == nil {
		t.Error("failed_at not set")
	}
}

func TestFindByOperationID(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	testsupport.NewJob(t, store, "job-6", "user-a")

	if _, err := store.Apply(ctx, "job-6", jobs.Update{ExternalOperationID: jobs.StringPtr("op-abc")}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	found, err := store.FindByOperationID(ctx, "op-abc")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.JobID != "job-6" {
		t.Errorf("job id = %q", found.JobID)
	}

	_, err = store.FindByOperationID(ctx, "op-unknown")
	if !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListFiltersByOwner(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	testsupport.NewJob(t, store, "job-7", "user-a")
	testsupport.NewJob(t, store, "job-8", "user-b")
	testsupport.NewJob(t, store, "job-9", "user-a")

	mine, err := store.List(ctx, "user-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(mine))
	}
	for _, record := range mine {
		if record.OwnerID != "user-a" {
			t.Errorf("foreign job in list: %+v", record)
		}
	}

	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(all))
	}
}

func TestListByStatusOrdersOldestFirst(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	testsupport.NewJob(t, store, "job-old", "user-a")
	time.Sleep(5 * time.Millisecond)
	testsupport.NewJob(t, store, "job-new", "user-a")

	pending, err := store.ListByStatus(ctx, jobs.StatusInitializing)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(pending))
	}
	if pending[0].JobID != "job-old" {
		t.Errorf("expected oldest first, got %q", pending[0].JobID)
	}
}
