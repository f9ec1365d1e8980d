package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"medley/internal/continuation"
	"medley/internal/jobs"
	"medley/internal/logging"
)

// pollStatuses are the states the loop picks work up in. ANALYSIS_PROCESSING
// is deliberately absent: those records are parked on a continuation token
// and resume through the resolver, not the poller.
var pollStatuses = []jobs.Status{
	jobs.StatusInitializing,
	jobs.StatusPreprocessed,
	jobs.StatusExtractingResults,
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		records, err := m.store.ListByStatus(ctx, pollStatuses...)
		if err != nil {
			m.setLastError(err)
			m.logger.Error("failed to poll job store", logging.Error(err))
			if !m.sleep(ctx, m.errorRetry) {
				return
			}
			continue
		}
		for _, record := range records {
			m.dispatch(ctx, record)
		}

		if !m.sleep(ctx, m.pollInterval) {
			return
		}
	}
}

// dispatch runs a record on its own goroutine so one suspended job cannot
// stall the rest of the queue. The in-flight set keeps the poller from
// double-dispatching a record the next tick; dispatch reports whether it
// claimed the job.
func (m *Manager) dispatch(ctx context.Context, record *jobs.Record) bool {
	m.mu.Lock()
	if _, busy := m.inflight[record.JobID]; busy {
		m.mu.Unlock()
		return false
	}
	m.inflight[record.JobID] = struct{}{}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.inflight, record.JobID)
			m.mu.Unlock()
			m.wg.Done()
		}()
		if err := m.processRecord(ctx, record); err != nil && !errors.Is(err, context.Canceled) {
			m.setLastError(err)
		}
	}()
	return true
}

// processRecord drives a single record as far forward as it can go in one
// pass: through preprocessing and invocation, across the suspension, then
// extraction and completion. Any step failure finalizes the job and ends
// the pass.
func (m *Manager) processRecord(ctx context.Context, record *jobs.Record) error {
	ctx = jobs.WithRequestID(jobs.WithJobID(ctx, record.JobID), uuid.NewString())
	log := logging.WithContext(ctx, m.logger)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		step, ok := m.steps[record.Status]
		if !ok {
			if record.Status == jobs.StatusCompleted {
				log.Info("job finished",
					logging.Float64("processing_time_seconds", record.ProcessingTime(time.Now().UTC())))
			}
			m.setLastRecord(record)
			return nil
		}

		if err := m.runStep(ctx, step, record); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			m.failRecord(ctx, step.name, record, err)
			return err
		}
		m.setLastRecord(record)

		// Invocation parks the job on its continuation token; the pass
		// continues only once the outcome arrives. With an external
		// callback backend nothing waits in-process: the token's waiter
		// is released and the notification path resumes the job.
		if record.Status == jobs.StatusAnalysisProcessing {
			if !m.localCallback {
				m.registry.Abandon(record.ContinuationToken)
				log.Info("job awaiting external analysis outcome",
					logging.String(logging.FieldOperationID, record.ExternalOperationID))
				m.setLastRecord(record)
				return nil
			}
			if err := m.awaitOutcome(ctx, record); err != nil {
				return err
			}
		}
	}
}

func (m *Manager) runStep(ctx context.Context, step namedStep, record *jobs.Record) error {
	start := time.Now()
	log := logging.WithContext(ctx, m.logger).With(logging.String(logging.FieldStep, step.name))
	log.Info("step started", logging.String(logging.FieldStatus, string(record.Status)))

	if err := step.handler.Prepare(ctx, record); err != nil {
		return err
	}
	if err := step.handler.Execute(ctx, record); err != nil {
		return err
	}

	log.Info("step completed",
		logging.String(logging.FieldStatus, string(record.Status)),
		logging.Duration("step_duration", time.Since(start)))
	return nil
}

// awaitOutcome blocks on the continuation token until the resolver delivers
// the analysis outcome, the suspension times out, or shutdown begins.
func (m *Manager) awaitOutcome(ctx context.Context, record *jobs.Record) error {
	log := logging.WithContext(ctx, m.logger)
	token := record.ContinuationToken
	ch, ok := m.registry.Wait(token)
	if !ok {
		err := jobs.Wrap(jobs.ErrResolution, "suspend", "wait for outcome",
			"continuation token not registered", nil)
		m.failRecord(ctx, "suspend", record, err)
		return err
	}

	timer := time.NewTimer(m.suspendTimeout)
	defer timer.Stop()

	log.Info("job suspended awaiting analysis outcome",
		logging.String(logging.FieldOperationID, record.ExternalOperationID))

	select {
	case <-ctx.Done():
		m.registry.Abandon(token)
		return ctx.Err()
	case <-timer.C:
		m.registry.Abandon(token)
		err := jobs.Wrap(jobs.ErrResolution, "suspend", "wait for outcome",
			"no analysis outcome within "+m.suspendTimeout.String(), nil)
		m.failRecord(ctx, "suspend", record, err)
		return err
	case outcome := <-ch:
		return m.resumeFromOutcome(ctx, record, outcome, log)
	}
}

func (m *Manager) resumeFromOutcome(ctx context.Context, record *jobs.Record, outcome continuation.Outcome, log *slog.Logger) error {
	if !outcome.Success {
		err := m.finalizeOutcome(ctx, record, outcome)
		m.setLastError(err)
		return err
	}
	log.Info("analysis outcome received",
		logging.String(logging.FieldOperationID, record.ExternalOperationID))
	return m.refreshRecord(ctx, record)
}

// finalizeOutcome routes a failed analysis outcome through the finalizer and
// returns the resolution error describing it.
func (m *Manager) finalizeOutcome(ctx context.Context, record *jobs.Record, outcome continuation.Outcome) error {
	cause := outcome.ErrorMessage
	if cause == "" {
		cause = "analysis operation failed"
	}
	m.final.Finalize(ctx, map[string]any{
		"job_id":  record.JobID,
		"error":   outcome.ErrorKind,
		"message": cause,
	})
	return jobs.Wrap(jobs.ErrResolution, "suspend", "analysis outcome", cause, nil)
}

// refreshRecord re-reads the record after the suspension so the next step
// sees attributes written while the job was parked.
func (m *Manager) refreshRecord(ctx context.Context, record *jobs.Record) error {
	updated, err := m.store.Get(ctx, record.JobID)
	if err != nil {
		m.failRecord(ctx, "suspend", record, err)
		return err
	}
	*record = *updated
	return nil
}

func (m *Manager) failRecord(ctx context.Context, stepName string, record *jobs.Record, stepErr error) {
	m.setLastError(stepErr)

	statusCode := 500
	if jobs.ClientFault(stepErr) {
		statusCode = 400
	}
	result := m.final.Finalize(ctx, map[string]any{
		"job_id":     record.JobID,
		"error":      jobs.Kind(stepErr),
		"message":    stepErr.Error(),
		"statusCode": statusCode,
	})

	logging.WithContext(ctx, m.logger).Error("step failed",
		logging.String(logging.FieldStep, stepName),
		logging.String("error_category", result.ErrorInfo.Category),
		logging.String(logging.FieldAlert, "step_failure"),
		logging.Error(stepErr))
	m.setLastRecord(record)
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
