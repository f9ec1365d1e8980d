// Package preprocess stages uploaded media for analysis. The raw upload is
// copied into the working area so later steps never touch the original
// object.
package preprocess

import (
	"context"
	"log/slog"
	"strings"

	"medley/internal/contentstore"
	"medley/internal/jobs"
	"medley/internal/jobstore"
	"medley/internal/logging"
	"medley/internal/stage"
)

// Step copies raw media into the working prefix and marks the job
// preprocessed.
type Step struct {
	store         jobstore.Store
	content       contentstore.Store
	scheme        string
	bucket        string
	rawPrefix     string
	workingPrefix string
	logger        *slog.Logger
}

// New builds the preprocess step.
func New(store jobstore.Store, content contentstore.Store, scheme, bucket, rawPrefix, workingPrefix string, logger *slog.Logger) *Step {
	return &Step{
		store:         store,
		content:       content,
		scheme:        scheme,
		bucket:        bucket,
		rawPrefix:     strings.Trim(rawPrefix, "/"),
		workingPrefix: strings.Trim(workingPrefix, "/"),
		logger:        logging.NewComponentLogger(logger, "preprocess"),
	}
}

// RawLocation returns where the raw upload for a job is expected to live.
func (s *Step) RawLocation(jobID, filename string) contentstore.Locator {
	return contentstore.Locator{Scheme: s.scheme, Bucket: s.bucket, Key: s.rawPrefix}.Join(jobID, filename)
}

// WorkingLocation returns where the staged copy for a job lives.
func (s *Step) WorkingLocation(jobID, filename string) contentstore.Locator {
	return contentstore.Locator{Scheme: s.scheme, Bucket: s.bucket, Key: s.workingPrefix}.Join(jobID, filename)
}

func (s *Step) Prepare(_ context.Context, record *jobs.Record) error {
	if record == nil || record.JobID == "" {
		return jobs.Wrap(jobs.ErrValidation, "preprocess", "prepare", "missing job id", nil)
	}
	if record.Status != jobs.StatusInitializing {
		return jobs.Wrap(jobs.ErrValidation, "preprocess", "prepare",
			"job not awaiting preprocessing: status "+string(record.Status), nil)
	}
	if strings.TrimSpace(record.Filename) == "" {
		return jobs.Wrap(jobs.ErrValidation, "preprocess", "prepare", "missing filename", nil)
	}
	return nil
}

func (s *Step) Execute(ctx context.Context, record *jobs.Record) error {
	ctx = jobs.WithStep(jobs.WithJobID(ctx, record.JobID), "preprocess")
	log := logging.WithContext(ctx, s.logger)

	raw := s.RawLocation(record.JobID, record.Filename)
	if record.RawLocation != "" {
		parsed, err := contentstore.ParseLocator(record.RawLocation)
		if err != nil {
			return jobs.Wrap(jobs.ErrValidation, "preprocess", "parse raw location", record.RawLocation, err)
		}
		raw = parsed
	}
	working := s.WorkingLocation(record.JobID, record.Filename)

	if err := s.content.Copy(ctx, raw, working); err != nil {
		return jobs.Wrap(jobs.ErrObjectStore, "preprocess", "stage media", raw.String(), err)
	}

	updated, err := s.store.Apply(ctx, record.JobID, jobs.Update{
		Status:          jobs.StatusPtr(jobs.StatusPreprocessed),
		RawLocation:     jobs.StringPtr(raw.String()),
		WorkingLocation: jobs.StringPtr(working.String()),
	})
	if err != nil {
		return err
	}
	*record = *updated

	log.Info("media staged",
		logging.String(logging.FieldStatus, string(updated.Status)),
		logging.String("working_location", working.String()))
	return nil
}

func (s *Step) HealthCheck(_ context.Context) stage.Health {
	if s.content == nil || s.store == nil {
		return stage.Unhealthy("preprocess", "content store or job store not configured")
	}
	return stage.Healthy("preprocess")
}
