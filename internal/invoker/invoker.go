// Package invoker starts the asynchronous analysis operation for a staged
// job and parks the run on a continuation token.
package invoker

import (
	"context"
	"log/slog"
	"strings"

	"medley/internal/contentstore"
	"medley/internal/jobs"
	"medley/internal/jobstore"
	"medley/internal/logging"
	"medley/internal/services/analysis"
	"medley/internal/stage"
)

// TokenSource mints continuation tokens for suspended runs.
type TokenSource interface {
	Issue() string
}

// Step submits analysis work and records the operation id and continuation
// token on the job.
type Step struct {
	store        jobstore.Store
	invoker      analysis.Invoker
	tokens       TokenSource
	scheme       string
	bucket       string
	outputPrefix string
	logger       *slog.Logger
}

// New builds the invoker step.
func New(store jobstore.Store, invoker analysis.Invoker, tokens TokenSource, scheme, bucket, outputPrefix string, logger *slog.Logger) *Step {
	return &Step{
		store:        store,
		invoker:      invoker,
		tokens:       tokens,
		scheme:       scheme,
		bucket:       bucket,
		outputPrefix: strings.Trim(outputPrefix, "/"),
		logger:       logging.NewComponentLogger(logger, "invoker"),
	}
}

// OutputLocation returns the prefix analysis results are directed to.
func (s *Step) OutputLocation(jobID string) contentstore.Locator {
	return contentstore.Locator{Scheme: s.scheme, Bucket: s.bucket, Key: s.outputPrefix}.Join(jobID)
}

func (s *Step) Prepare(_ context.Context, record *jobs.Record) error {
	if record == nil || record.JobID == "" {
		return jobs.Wrap(jobs.ErrValidation, "invoke", "prepare", "missing job id", nil)
	}
	if record.Status != jobs.StatusPreprocessed {
		return jobs.Wrap(jobs.ErrValidation, "invoke", "prepare",
			"job not staged for analysis: status "+string(record.Status), nil)
	}
	if strings.TrimSpace(record.WorkingLocation) == "" {
		return jobs.Wrap(jobs.ErrValidation, "invoke", "prepare", "missing working location", nil)
	}
	return nil
}

func (s *Step) Execute(ctx context.Context, record *jobs.Record) error {
	ctx = jobs.WithStep(jobs.WithJobID(ctx, record.JobID), "invoke")
	log := logging.WithContext(ctx, s.logger)

	output := s.OutputLocation(record.JobID)
	operationID, err := s.invoker.Start(ctx, record.WorkingLocation, output.String())
	if err != nil {
		return err
	}

	token := s.tokens.Issue()
	updated, err := s.store.Apply(ctx, record.JobID, jobs.Update{
		Status:              jobs.StatusPtr(jobs.StatusAnalysisProcessing),
		ExternalOperationID: jobs.StringPtr(operationID),
		ContinuationToken:   jobs.StringPtr(token),
	})
	if err != nil {
		return err
	}
	*record = *updated

	log.Info("analysis started",
		logging.String(logging.FieldOperationID, operationID),
		logging.String(logging.FieldStatus, string(updated.Status)))
	return nil
}

func (s *Step) HealthCheck(_ context.Context) stage.Health {
	if s.invoker == nil || s.tokens == nil || s.store == nil {
		return stage.Unhealthy("invoker", "analysis invoker not configured")
	}
	return stage.Healthy("invoker")
}
