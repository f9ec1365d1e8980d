package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"medley/internal/continuation"
	"medley/internal/jobs"
	"medley/internal/jobstore"
	"medley/internal/logging"
)

type lookupStore struct {
	jobstore.Store

	calls   int
	misses  int
	record  *jobs.Record
	lookups []string
}

func (s *lookupStore) FindByOperationID(_ context.Context, operationID string) (*jobs.Record, error) {
	s.calls++
	s.lookups = append(s.lookups, operationID)
	if s.calls <= s.misses {
		return nil, jobs.Wrap(jobs.ErrNotFound, "store", "find by operation id", "no record", nil)
	}
	if s.record == nil {
		return nil, jobs.Wrap(jobs.ErrStore, "store", "find by operation id", "query failed", nil)
	}
	return s.record, nil
}

type recordingSender struct {
	successToken string
	successOut   any
	failureToken string
	failureKind  string
	failureCause string
	calls        int
	err          error
}

func (s *recordingSender) SendSuccess(_ context.Context, token string, output any) error {
	s.calls++
	s.successToken = token
	s.successOut = output
	return s.err
}

func (s *recordingSender) SendFailure(_ context.Context, token, errorKind, cause string) error {
	s.calls++
	s.failureToken = token
	s.failureKind = errorKind
	s.failureCause = cause
	return s.err
}

var _ continuation.Sender = (*recordingSender)(nil)

func testOptions() Options {
	return Options{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func testRecord() *jobs.Record {
	return &jobs.Record{
		JobID:               "job-1",
		Status:              jobs.StatusAnalysisProcessing,
		ExternalOperationID: "op-1",
		ContinuationToken:   "token-1",
	}
}

func TestResolveSuccessAfterRetries(t *testing.T) {
	store := &lookupStore{misses: 2, record: testRecord()}
	sender := &recordingSender{}
	r := New(store, sender, testOptions(), logging.NewNop())

	start := time.Now()
	record, err := r.Resolve(context.Background(), Notification{
		OperationID: "op-1",
		Succeeded:   true,
		Detail:      map[string]any{"result": "ok"},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("resolution took too long: %v", elapsed)
	}
	if record.JobID != "job-1" {
		t.Fatalf("resolved wrong record: %s", record.JobID)
	}
	if store.calls != 3 {
		t.Fatalf("expected 3 lookups, got %d", store.calls)
	}
	if sender.calls != 1 {
		t.Fatalf("expected exactly one callback, got %d", sender.calls)
	}
	if sender.successToken != "token-1" {
		t.Fatalf("callback used wrong token: %q", sender.successToken)
	}
	out, ok := sender.successOut.(map[string]any)
	if !ok {
		t.Fatalf("unexpected output type %T", sender.successOut)
	}
	if out["job_id"] != "job-1" || out["operation_id"] != "op-1" || out["status"] != "SUCCESS" {
		t.Fatalf("unexpected output: %#v", out)
	}
}

func TestResolveFailureNotification(t *testing.T) {
	store := &lookupStore{record: testRecord()}
	sender := &recordingSender{}
	r := New(store, sender, testOptions(), logging.NewNop())

	if _, err := r.Resolve(context.Background(), Notification{
		OperationID:  "op-1",
		ErrorMessage: "decode failure at 00:12",
	}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if sender.failureToken != "token-1" {
		t.Fatalf("failure used wrong token: %q", sender.failureToken)
	}
	if sender.failureKind != FailureKind {
		t.Fatalf("unexpected failure kind: %q", sender.failureKind)
	}
	if sender.failureCause != "decode failure at 00:12" {
		t.Fatalf("unexpected cause: %q", sender.failureCause)
	}
}

func TestResolveExhaustsLookupRetries(t *testing.T) {
	store := &lookupStore{misses: 10}
	sender := &recordingSender{}
	r := New(store, sender, testOptions(), logging.NewNop())

	_, err := r.Resolve(context.Background(), Notification{OperationID: "op-missing", Succeeded: true})
	if !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected not-found after exhaustion, got %v", err)
	}
	if store.calls != 5 {
		t.Fatalf("expected 5 lookup attempts, got %d", store.calls)
	}
	if sender.calls != 0 {
		t.Fatalf("no callback should be sent, got %d", sender.calls)
	}
}

func TestResolveStoreFaultAbortsImmediately(t *testing.T) {
	store := &lookupStore{}
	r := New(store, &recordingSender{}, testOptions(), logging.NewNop())

	_, err := r.Resolve(context.Background(), Notification{OperationID: "op-1", Succeeded: true})
	if !errors.Is(err, jobs.ErrStore) {
		t.Fatalf("expected store fault, got %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("store faults must not be retried, got %d attempts", store.calls)
	}
}

func TestResolveMissingTokenIsPermanent(t *testing.T) {
	record := testRecord()
	record.ContinuationToken = ""
	store := &lookupStore{record: record}
	sender := &recordingSender{}
	r := New(store, sender, testOptions(), logging.NewNop())

	_, err := r.Resolve(context.Background(), Notification{OperationID: "op-1", Succeeded: true})
	if !errors.Is(err, jobs.ErrResolution) {
		t.Fatalf("expected resolution error, got %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("no callback should be sent without a token, got %d", sender.calls)
	}
}

func TestResolveValidatesOperationID(t *testing.T) {
	r := New(&lookupStore{}, &recordingSender{}, testOptions(), logging.NewNop())
	_, err := r.Resolve(context.Background(), Notification{OperationID: "  "})
	if !errors.Is(err, jobs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveHonorsContextCancellation(t *testing.T) {
	store := &lookupStore{misses: 10}
	r := New(store, &recordingSender{}, Options{
		MaxAttempts:  5,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
	}, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, Notification{OperationID: "op-1", Succeeded: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestResolveLocalRegistryRoundTrip(t *testing.T) {
	registry := continuation.NewRegistry()
	token := registry.Issue()
	record := testRecord()
	record.ContinuationToken = token
	store := &lookupStore{record: record}
	r := New(store, registry, testOptions(), logging.NewNop())

	ch, ok := registry.Wait(token)
	if !ok {
		t.Fatal("token not registered")
	}

	if _, err := r.Resolve(context.Background(), Notification{
		OperationID: "op-1",
		Succeeded:   true,
		Detail:      map[string]any{"job_status": "Succeeded"},
	}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	select {
	case outcome := <-ch:
		if !outcome.Success {
			t.Fatalf("expected successful outcome: %#v", outcome)
		}
		if outcome.Result["status"] != "SUCCESS" {
			t.Fatalf("unexpected result: %#v", outcome.Result)
		}
	case <-time.After(time.Second):
		t.Fatal("outcome never delivered")
	}
}
