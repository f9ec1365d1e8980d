// Package completion finishes successful jobs.
package completion

import (
	"context"
	"log/slog"
	"time"

	"medley/internal/jobs"
	"medley/internal/jobstore"
	"medley/internal/logging"
	"medley/internal/stage"
)

// Step marks a job completed and records total processing time.
type Step struct {
	store  jobstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// New builds the completion step.
func New(store jobstore.Store, logger *slog.Logger) *Step {
	return &Step{store: store, logger: logging.NewComponentLogger(logger, "completion"), now: time.Now}
}

func (s *Step) Prepare(_ context.Context, record *jobs.Record) error {
	if record == nil || record.JobID == "" {
		return jobs.Wrap(jobs.ErrValidation, "complete", "prepare", "missing job id", nil)
	}
	if record.Status != jobs.StatusExtractingResults {
		return jobs.Wrap(jobs.ErrValidation, "complete", "prepare",
			"job not ready for completion: status "+string(record.Status), nil)
	}
	return nil
}

func (s *Step) Execute(ctx context.Context, record *jobs.Record) error {
	ctx = jobs.WithStep(jobs.WithJobID(ctx, record.JobID), "complete")
	log := logging.WithContext(ctx, s.logger)

	now := s.now().UTC()
	updated, err := s.store.Apply(ctx, record.JobID, jobs.Update{
		Status:      jobs.StatusPtr(jobs.StatusCompleted),
		CompletedAt: jobs.TimePtr(now),
	})
	if err != nil {
		return err
	}
	*record = *updated

	log.Info("job completed",
		logging.String(logging.FieldStatus, string(updated.Status)),
		logging.Float64("processing_time_seconds", updated.ProcessingTime(now)))
	return nil
}

func (s *Step) HealthCheck(_ context.Context) stage.Health {
	if s.store == nil {
		return stage.Unhealthy("completion", "job store not configured")
	}
	return stage.Healthy("completion")
}
