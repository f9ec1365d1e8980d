package contentstore

import (
	"errors"
	"testing"

	"medley/internal/jobs"
)

func TestParseLocator(t *testing.T) {
	loc, err := ParseLocator("s3://media-bucket/raw-media/clip.mp4")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if loc.Scheme != SchemeS3 || loc.Bucket != "media-bucket" || loc.Key != "raw-media/clip.mp4" {
		t.Errorf("unexpected locator: %+v", loc)
	}
	if loc.String() != "s3://media-bucket/raw-media/clip.mp4" {
		t.Errorf("round trip: %q", loc.String())
	}
}

func TestParseLocatorFileScheme(t *testing.T) {
	loc, err := ParseLocator("file://medley-media/transcripts/job-1/transcript.txt")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if loc.Scheme != SchemeFile || loc.Bucket != "medley-media" {
		t.Errorf("unexpected locator: %+v", loc)
	}
	if loc.Base() != "transcript.txt" {
		t.Errorf("base: %q", loc.Base())
	}
}

func TestParseLocatorRejectsInvalid(t *testing.T) {
	for _, input := range []string{"", "no-scheme/key", "ftp://bucket/key", "s3://"} {
		if _, err := ParseLocator(input); err == nil {
			t.Errorf("expected error for %q", input)
		} else if !errors.Is(err, jobs.ErrValidation) {
			t.Errorf("expected validation error for %q, got %v", input, err)
		}
	}
}

func TestLocatorJoin(t *testing.T) {
	base := Locator{Scheme: SchemeS3, Bucket: "b", Key: "transcripts"}
	joined := base.Join("job-7", "transcript.txt")
	if joined.Key != "transcripts/job-7/transcript.txt" {
		t.Errorf("join: %q", joined.Key)
	}
	empty := Locator{Scheme: SchemeS3, Bucket: "b"}
	if got := empty.Join("x").Key; got != "x" {
		t.Errorf("join from empty key: %q", got)
	}
}
