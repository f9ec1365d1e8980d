package jobs

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for the closed error-kind set. Callers classify failures
// with errors.Is rather than string matching.
var (
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrValidation  = errors.New("validation error")
	ErrStore       = errors.New("store error")
	ErrObjectStore = errors.New("object store error")
	ErrExtraction  = errors.New("extraction error")
	ErrResolution  = errors.New("resolution error")
	ErrInternal    = errors.New("internal error")
)

// Wrap builds an error message that includes step context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrInternal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the stable machine-readable category for an error, suitable
// for externally returned error bodies.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrStore):
		return "StoreError"
	case errors.Is(err, ErrObjectStore):
		return "ObjectStoreError"
	case errors.Is(err, ErrExtraction):
		return "ExtractionError"
	case errors.Is(err, ErrResolution):
		return "ResolutionError"
	default:
		return "InternalError"
	}
}

// ClientFault reports whether the error was caused by the caller rather than
// the system; these map to client_error in persisted ErrorInfo.
func ClientFault(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound)
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "job failure"
	}
	return strings.Join(parts, ": ")
}
