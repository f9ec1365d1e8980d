package extraction

import (
	"context"
	"log/slog"

	"medley/internal/jobs"
	"medley/internal/jobstore"
	"medley/internal/logging"
	"medley/internal/stage"
)

// Step runs the extraction engine as a pipeline step and records the
// artifact locations on the job.
type Step struct {
	store  jobstore.Store
	engine *Engine
	logger *slog.Logger
}

// NewStep wires the engine to the job store.
func NewStep(store jobstore.Store, engine *Engine, logger *slog.Logger) *Step {
	return &Step{store: store, engine: engine, logger: logging.NewComponentLogger(logger, "extraction")}
}

func (s *Step) Prepare(_ context.Context, record *jobs.Record) error {
	if record == nil || record.JobID == "" {
		return jobs.Wrap(jobs.ErrValidation, "extract", "prepare", "missing job id", nil)
	}
	if record.Status != jobs.StatusAnalysisProcessing {
		return jobs.Wrap(jobs.ErrValidation, "extract", "prepare",
			"job not awaiting extraction: status "+string(record.Status), nil)
	}
	return nil
}

func (s *Step) Execute(ctx context.Context, record *jobs.Record) error {
	ctx = jobs.WithStep(jobs.WithJobID(ctx, record.JobID), "extract")
	log := logging.WithContext(ctx, s.logger)

	result, err := s.engine.Extract(ctx, record.JobID)
	if err != nil {
		return err
	}

	updated, err := s.store.Apply(ctx, record.JobID, jobs.Update{
		Status:                 jobs.StatusPtr(jobs.StatusExtractingResults),
		ContentLocation:        jobs.StringPtr(result.ContentLocation.String()),
		AnalysisOutputLocation: jobs.StringPtr(result.ResultsLocation.String()),
	})
	if err != nil {
		return err
	}
	*record = *updated

	log.Info("extraction recorded",
		logging.String(logging.FieldStatus, string(updated.Status)),
		logging.String("content_kind", result.Kind))
	return nil
}

func (s *Step) HealthCheck(ctx context.Context) stage.Health {
	if s.engine == nil || s.store == nil {
		return stage.Unhealthy("extraction", "engine or store not configured")
	}
	return stage.Healthy("extraction")
}
