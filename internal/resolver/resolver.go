// Package resolver turns completion notifications into continuation
// callbacks. The operation-id index joining notifications to jobs is
// eventually consistent, so a miss on lookup is retried with exponential
// backoff before it is treated as permanent.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"medley/internal/backoff"
	"medley/internal/continuation"
	"medley/internal/jobs"
	"medley/internal/jobstore"
	"medley/internal/logging"
)

// Notification is a completion report for an external analysis operation.
type Notification struct {
	OperationID  string         `json:"operation_id"`
	Succeeded    bool           `json:"succeeded"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Detail       map[string]any `json:"detail,omitempty"`
}

// FailureKind is the error label delivered with failed callbacks.
const FailureKind = "AnalysisFailed"

// Options tune the lookup retry loop.
type Options struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultOptions mirror the tolerances the index needs in practice.
func DefaultOptions() Options {
	return Options{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

// Resolver resolves notifications against the job store and delivers the
// outcome through the callback sender.
type Resolver struct {
	store    jobstore.Store
	sender   continuation.Sender
	strategy backoff.Strategy
	attempts int
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

// New builds a resolver with the given retry options.
func New(store jobstore.Store, sender continuation.Sender, opts Options, logger *slog.Logger) *Resolver {
	if opts.MaxAttempts <= 0 {
		opts = DefaultOptions()
	}
	return &Resolver{
		store:    store,
		sender:   sender,
		strategy: backoff.NewExponential(opts.InitialDelay, opts.MaxDelay),
		attempts: opts.MaxAttempts,
		logger:   logging.NewComponentLogger(logger, "resolver"),
		sleep:    sleepContext,
	}
}

// Resolve looks up the job for a notification and delivers its callback
// exactly once. The store lookup retries on misses; a job without a
// continuation token is a permanent error.
func (r *Resolver) Resolve(ctx context.Context, n Notification) (*jobs.Record, error) {
	if strings.TrimSpace(n.OperationID) == "" {
		return nil, jobs.Wrap(jobs.ErrValidation, "resolve", "validate notification", "missing operation id", nil)
	}
	ctx = jobs.WithStep(ctx, "resolve")
	log := logging.WithContext(ctx, r.logger).With(logging.String(logging.FieldOperationID, n.OperationID))

	record, err := r.findJob(ctx, n.OperationID, log)
	if err != nil {
		return nil, err
	}
	log = log.With(logging.String(logging.FieldJobID, record.JobID))

	token := record.ContinuationToken
	if token == "" {
		return record, jobs.Wrap(jobs.ErrResolution, "resolve", "read continuation token",
			"no continuation token for job "+record.JobID, nil)
	}

	if n.Succeeded {
		output := map[string]any{
			"job_id":       record.JobID,
			"operation_id": n.OperationID,
			"status":       "SUCCESS",
			"detail":       n.Detail,
		}
		if err := r.sender.SendSuccess(ctx, token, output); err != nil {
			return record, err
		}
		log.Info("resolved notification", logging.String("outcome", "success"))
		return record, nil
	}

	cause := n.ErrorMessage
	if cause == "" {
		cause = "analysis operation failed"
	}
	if err := r.sender.SendFailure(ctx, token, FailureKind, cause); err != nil {
		return record, err
	}
	log.Info("resolved notification", logging.String("outcome", "failure"), logging.String("cause", cause))
	return record, nil
}

// findJob retries the index lookup on misses. Only a miss is transient;
// store faults abort immediately.
func (r *Resolver) findJob(ctx context.Context, operationID string, log *slog.Logger) (*jobs.Record, error) {
	for attempt := 1; attempt <= r.attempts; attempt++ {
		record, err := r.store.FindByOperationID(ctx, operationID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, jobs.ErrNotFound) {
			return nil, err
		}
		if attempt == r.attempts {
			break
		}

		delay := r.strategy.Delay(attempt)
		log.Warn("no job found for operation, retrying",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", r.attempts),
			logging.Duration("retry_delay", delay))
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, jobs.Wrap(jobs.ErrNotFound, "resolve", "find job",
		"no job found for operation after retries: "+operationID, nil)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
