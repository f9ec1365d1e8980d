// Package identity resolves the calling principal for API requests. The
// daemon sits behind an authenticating proxy that forwards the verified
// subject claim in a header; requests without a subject are rejected.
package identity

import (
	"net/http"
	"strings"

	"medley/internal/jobs"
)

// SubjectHeader carries the verified subject claim set by the fronting
// authorizer.
const SubjectHeader = "X-Medley-Subject"

// Claims identifies the authenticated caller.
type Claims struct {
	Subject string
}

// FromRequest extracts caller claims from the request. A missing or blank
// subject yields a Forbidden-classified error so handlers can map it to 401.
func FromRequest(r *http.Request) (Claims, error) {
	subject := strings.TrimSpace(r.Header.Get(SubjectHeader))
	if subject == "" {
		return Claims{}, jobs.Wrap(jobs.ErrForbidden, "", "authenticate request", "unable to determine caller identity", nil)
	}
	return Claims{Subject: subject}, nil
}

// Owns reports whether the claims subject owns the given record. Records
// without an owner are visible to any authenticated caller.
func (c Claims) Owns(record *jobs.Record) bool {
	if record == nil {
		return false
	}
	if record.OwnerID == "" {
		return true
	}
	return record.OwnerID == c.Subject
}
