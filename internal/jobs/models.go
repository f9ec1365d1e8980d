package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a media-processing job.
type Status string

const (
	StatusInitializing       Status = "INITIALIZING"
	StatusPreprocessed       Status = "PREPROCESSED"
	StatusAnalysisProcessing Status = "ANALYSIS_PROCESSING"
	StatusExtractingResults  Status = "EXTRACTING_RESULTS"
	StatusCompleted          Status = "COMPLETED"
	StatusFailed             Status = "FAILED"
)

var allStatuses = []Status{
	StatusInitializing,
	StatusPreprocessed,
	StatusAnalysisProcessing,
	StatusExtractingResults,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// happyPathOrder indexes the forward path; FAILED is handled separately.
var happyPathOrder = map[Status]int{
	StatusInitializing:       0,
	StatusPreprocessed:       1,
	StatusAnalysisProcessing: 2,
	StatusExtractingResults:  3,
	StatusCompleted:          4,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from one status to another follows the
// state graph: each happy-path status advances only to its direct successor,
// and FAILED is reachable from any non-terminal status.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		_, known := happyPathOrder[from]
		return known
	}
	fromIdx, okFrom := happyPathOrder[from]
	toIdx, okTo := happyPathOrder[to]
	if !okFrom || !okTo {
		return false
	}
	return toIdx == fromIdx+1
}

// ErrorInfo captures structured failure detail persisted with a FAILED job.
type ErrorInfo struct {
	Kind      string    `json:"kind,omitempty"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// Failure categories persisted in ErrorInfo.Category.
const (
	CategoryClientError = "client_error"
	CategoryServerError = "server_error"
)

// Record is the durable job record, the only persistent entity.
// Records are mutated attribute-by-attribute, never replaced wholesale,
// so concurrent steps cannot clobber attributes they do not own.
type Record struct {
	JobID                  string     `json:"job_id"`
	OwnerID                string     `json:"owner_id,omitempty"`
	Status                 Status     `json:"status"`
	Filename               string     `json:"filename,omitempty"`
	RawLocation            string     `json:"raw_location,omitempty"`
	WorkingLocation        string     `json:"working_location,omitempty"`
	ExternalOperationID    string     `json:"external_operation_id,omitempty"`
	ContinuationToken      string     `json:"continuation_token,omitempty"`
	ContentLocation        string     `json:"content_location,omitempty"`
	AnalysisOutputLocation string     `json:"analysis_output_location,omitempty"`
	ErrorInfo              *ErrorInfo `json:"error_info,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
	CompletedAt            *time.Time `json:"completed_at,omitempty"`
	FailedAt               *time.Time `json:"failed_at,omitempty"`
}

// ProcessingTime returns elapsed seconds from creation to the given moment.
// A zero creation time yields 0 rather than a bogus huge value.
func (r *Record) ProcessingTime(now time.Time) float64 {
	if r == nil || r.CreatedAt.IsZero() {
		return 0
	}
	seconds := now.Sub(r.CreatedAt).Seconds()
	if seconds < 0 {
		return 0
	}
	return seconds
}

// Update is an attribute-level patch applied to a Record. Nil fields are
// left untouched; the store always refreshes updated_at alongside a patch.
type Update struct {
	Status                 *Status
	Filename               *string
	RawLocation            *string
	WorkingLocation        *string
	ExternalOperationID    *string
	ContinuationToken      *string
	ContentLocation        *string
	AnalysisOutputLocation *string
	ErrorInfo              *ErrorInfo
	CompletedAt            *time.Time
	FailedAt               *time.Time
}

// IsEmpty reports whether the patch carries no attribute changes.
func (u Update) IsEmpty() bool {
	return u.Status == nil &&
		u.Filename == nil &&
		u.RawLocation == nil &&
		u.WorkingLocation == nil &&
		u.ExternalOperationID == nil &&
		u.ContinuationToken == nil &&
		u.ContentLocation == nil &&
		u.AnalysisOutputLocation == nil &&
		u.ErrorInfo == nil &&
		u.CompletedAt == nil &&
		u.FailedAt == nil
}

// StatusPtr is a convenience for building Updates.
func StatusPtr(s Status) *Status { return &s }

// StringPtr is a convenience for building Updates.
func StringPtr(s string) *string { return &s }

// TimePtr is a convenience for building Updates.
func TimePtr(t time.Time) *time.Time { return &t }
