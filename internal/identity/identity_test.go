package identity

import (
	"errors"
	"net/http/httptest"
	"testing"

	"medley/internal/jobs"
)

func TestFromRequestExtractsSubject(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/jobs", nil)
	req.Header.Set(SubjectHeader, "user-42")

	claims, err := FromRequest(req)
	if err != nil {
		t.Fatalf("from request: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Errorf("subject = %q", claims.Subject)
	}
}

func TestFromRequestRejectsMissingSubject(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/jobs", nil)
	_, err := FromRequest(req)
	if !errors.Is(err, jobs.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	req.Header.Set(SubjectHeader, "   ")
	if _, err := FromRequest(req); !errors.Is(err, jobs.ErrForbidden) {
		t.Fatalf("expected forbidden for blank subject, got %v", err)
	}
}

func TestOwns(t *testing.T) {
	claims := Claims{Subject: "user-a"}
	if !claims.Owns(&jobs.Record{JobID: "j", OwnerID: "user-a"}) {
		t.Error("owner should match")
	}
	if claims.Owns(&jobs.Record{JobID: "j", OwnerID: "user-b"}) {
		t.Error("foreign record should not match")
	}
	if !claims.Owns(&jobs.Record{JobID: "j"}) {
		t.Error("ownerless record should be visible")
	}
	if claims.Owns(nil) {
		t.Error("nil record is never owned")
	}
}
