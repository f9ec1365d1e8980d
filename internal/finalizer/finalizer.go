// Package finalizer records a terminal FAILED state for a job from an
// arbitrarily shaped failure event. It is the last stop for every error in
// the pipeline and must never itself fail: a botched store write is logged,
// a panic inside the finalizer degrades to a fixed sentinel result.
package finalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"medley/internal/jobs"
	"medley/internal/jobstore"
	"medley/internal/logging"
)

// UnknownJobID is returned when no extraction strategy finds a job id.
const UnknownJobID = "unknown"

// Result is the structured outcome of finalization. It is always produced,
// even for malformed input.
type Result struct {
	StatusCode int            `json:"status_code"`
	JobID      string         `json:"job_id"`
	Status     jobs.Status    `json:"status"`
	ErrorInfo  jobs.ErrorInfo `json:"error_info"`
	Message    string         `json:"message"`
}

// Finalizer writes failure state to the job store.
type Finalizer struct {
	store  jobstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// New builds a finalizer over the store.
func New(store jobstore.Store, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		store:  store,
		logger: logging.NewComponentLogger(logger, "finalizer"),
		now:    time.Now,
	}
}

// Finalize extracts a job id and error details from the event, marks the
// job FAILED when the id is known, and returns a structured result. It
// never returns an error.
func (f *Finalizer) Finalize(ctx context.Context, event map[string]any) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("finalizer fault", logging.String("panic", fmt.Sprint(r)))
			result = Result{
				StatusCode: 500,
				JobID:      UnknownJobID,
				Status:     jobs.StatusFailed,
				ErrorInfo: jobs.ErrorInfo{
					Kind:      "FinalizerFailure",
					Message:   fmt.Sprintf("finalizer failed: %v", r),
					Category:  jobs.CategoryServerError,
					Timestamp: time.Now().UTC(),
				},
				Message: "critical error: finalizer failed",
			}
		}
	}()

	jobID := ExtractJobID(event)
	info, statusCode := ExtractErrorInfo(event, f.now().UTC())

	log := f.logger.With(
		logging.String(logging.FieldJobID, jobID),
		logging.String("error_category", info.Category))
	log.Info("handling workflow failure", logging.String("error_type", info.Kind))

	if jobID != UnknownJobID {
		f.markFailed(ctx, jobID, info, log)
	} else {
		log.Warn("could not extract job id from failure event")
	}

	return Result{
		StatusCode: statusCode,
		JobID:      jobID,
		Status:     jobs.StatusFailed,
		ErrorInfo:  info,
		Message:    "job failed: " + info.Message,
	}
}

// markFailed writes the terminal state best-effort. Store failures are
// logged and swallowed so the finalizer cannot cascade.
func (f *Finalizer) markFailed(ctx context.Context, jobID string, info jobs.ErrorInfo, log *slog.Logger) {
	failedAt := f.now().UTC()
	patch := jobs.Update{
		Status:    jobs.StatusPtr(jobs.StatusFailed),
		ErrorInfo: &info,
		FailedAt:  jobs.TimePtr(failedAt),
	}
	if _, err := f.store.Apply(ctx, jobID, patch); err != nil {
		log.Error("failed to record job failure", logging.Error(err))
		return
	}
	log.Info("job marked as failed")
}

// ExtractJobID tries the known locations a failure event can carry a job
// id, in order, and falls back to UnknownJobID.
func ExtractJobID(event map[string]any) string {
	if event == nil {
		return UnknownJobID
	}
	if id := stringField(event, "job_id"); id != "" {
		return id
	}

	// A body may arrive structured or as an encoded string.
	switch body := event["body"].(type) {
	case map[string]any:
		if id := stringField(body, "job_id"); id != "" {
			return id
		}
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(body), &decoded); err == nil {
			if id := stringField(decoded, "job_id"); id != "" {
				return id
			}
		}
	}

	if inner, ok := event["error"].(map[string]any); ok {
		if id := stringField(inner, "job_id"); id != "" {
			return id
		}
	}

	// Workflow engines wrap downstream errors in a string-encoded cause.
	if cause, ok := event["Cause"].(string); ok {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(cause), &decoded); err == nil {
			if id := stringField(decoded, "job_id"); id != "" {
				return id
			}
		}
	}

	return UnknownJobID
}

// ExtractErrorInfo pulls a kind, message, and category out of the event.
// Missing fields degrade to "Unknown error" and server_error/500.
func ExtractErrorInfo(event map[string]any, now time.Time) (jobs.ErrorInfo, int) {
	info := jobs.ErrorInfo{Timestamp: now}

	if kind := stringField(event, "Error"); kind != "" {
		info.Kind = kind
	}
	if kind := stringField(event, "error"); kind != "" {
		info.Kind = kind
	}
	if kind := stringField(event, "errorType"); kind != "" {
		info.Kind = kind
	}
	if info.Kind == "" {
		info.Kind = "UnknownError"
	}

	switch {
	case stringField(event, "Cause") != "":
		info.Message = stringField(event, "Cause")
	case stringField(event, "message") != "":
		info.Message = stringField(event, "message")
	case stringField(event, "errorMessage") != "":
		info.Message = stringField(event, "errorMessage")
	default:
		info.Message = "Unknown error"
	}

	statusCode := 500
	if code, ok := numberField(event, "statusCode"); ok {
		statusCode = code
	}
	if statusCode >= 400 && statusCode < 500 {
		info.Category = jobs.CategoryClientError
	} else {
		info.Category = jobs.CategoryServerError
	}
	return info, statusCode
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func numberField(m map[string]any, key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
	}
	return 0, false
}
