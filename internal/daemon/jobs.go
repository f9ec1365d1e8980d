package daemon

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"medley/internal/contentstore"
	"medley/internal/continuation"
	"medley/internal/identity"
	"medley/internal/jobs"
	"medley/internal/logging"
	"medley/internal/resolver"
)

// CreateJob stores the uploaded media under the raw prefix and records a
// new job owned by the caller. The upload is the act of creation: the
// record only exists once the raw object does, so the workflow never races
// a half-submitted job.
func (d *Daemon) CreateJob(ctx context.Context, claims identity.Claims, filename string, media []byte, contentType string) (*jobs.Record, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, jobs.Wrap(jobs.ErrValidation, "initialize", "validate request", "missing filename", nil)
	}
	if strings.ContainsAny(filename, "/\\") {
		return nil, jobs.Wrap(jobs.ErrValidation, "initialize", "validate request", "filename must not contain path separators", nil)
	}
	if len(media) == 0 {
		return nil, jobs.Wrap(jobs.ErrValidation, "initialize", "validate request", "empty media body", nil)
	}

	jobID := uuid.NewString()
	raw := d.rawLocation(jobID, filename)
	if err := d.content.Put(ctx, raw, media, contentType); err != nil {
		return nil, jobs.Wrap(jobs.ErrObjectStore, "initialize", "store raw media", raw.String(), err)
	}

	now := time.Now().UTC()
	record := &jobs.Record{
		JobID:       jobID,
		OwnerID:     claims.Subject,
		Status:      jobs.StatusInitializing,
		Filename:    filename,
		RawLocation: raw.String(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.store.Create(ctx, record); err != nil {
		return nil, err
	}

	d.logger.Info("job created",
		logging.String(logging.FieldJobID, jobID),
		logging.String("filename", filename),
		logging.Int("media_bytes", len(media)))
	return record, nil
}

// JobView is a job record with the extracted content inlined for completed
// jobs.
type JobView struct {
	*jobs.Record
	Content string `json:"content,omitempty"`
}

// GetJob fetches a record the caller is allowed to see. Completed jobs get
// their extracted content inlined; a missing content object degrades to the
// bare record rather than failing the request.
func (d *Daemon) GetJob(ctx context.Context, claims identity.Claims, jobID string) (*JobView, error) {
	record, err := d.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !claims.Owns(record) {
		d.logger.Warn("ownership check failed",
			logging.String(logging.FieldJobID, jobID),
			logging.String("subject", claims.Subject))
		return nil, jobs.Wrap(jobs.ErrForbidden, "status", "check ownership",
			"job belongs to a different caller", nil)
	}

	view := &JobView{Record: record}
	if record.Status == jobs.StatusCompleted && record.ContentLocation != "" {
		loc, err := contentstore.ParseLocator(record.ContentLocation)
		if err == nil {
			if body, getErr := d.content.Get(ctx, loc); getErr == nil {
				view.Content = string(body)
			} else {
				d.logger.Warn("content not readable for completed job",
					logging.String(logging.FieldJobID, jobID),
					logging.Error(getErr))
			}
		}
	}
	return view, nil
}

// ListJobs returns the caller's jobs, newest first.
func (d *Daemon) ListJobs(ctx context.Context, claims identity.Claims) ([]*jobs.Record, error) {
	return d.store.List(ctx, claims.Subject)
}

// Notify feeds a completion notification to the resolver. With an external
// callback backend no run is parked in-process, so the notification is also
// what restarts the pipeline pass for the job.
func (d *Daemon) Notify(ctx context.Context, n resolver.Notification) (*jobs.Record, error) {
	record, err := d.resolver.Resolve(ctx, n)
	if err != nil {
		return nil, err
	}
	if d.cfg.Callback.Backend != "local" {
		outcome := continuation.Outcome{Success: n.Succeeded}
		if !n.Succeeded {
			outcome.ErrorKind = resolver.FailureKind
			outcome.ErrorMessage = n.ErrorMessage
		}
		if err := d.workflow.Resume(ctx, record.JobID, outcome); err != nil {
			d.logger.Warn("failed to resume job after notification",
				logging.String(logging.FieldJobID, record.JobID),
				logging.Error(err))
		}
	}
	return record, nil
}

func (d *Daemon) scheme() string {
	if d.cfg.Content.Backend == "s3" {
		return contentstore.SchemeS3
	}
	return contentstore.SchemeFile
}

func (d *Daemon) rawLocation(jobID, filename string) contentstore.Locator {
	return contentstore.Locator{
		Scheme: d.scheme(),
		Bucket: d.cfg.Content.Bucket,
		Key:    strings.Trim(d.cfg.Content.RawPrefix, "/"),
	}.Join(jobID, filename)
}
