package extraction_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"medley/internal/contentstore"
	"medley/internal/contentstore/fsstore"
	"medley/internal/extraction"
	"medley/internal/jobs"
	"medley/internal/logging"
	"medley/internal/testsupport"
)

const testBucket = "medley-media"

func newEngine(t *testing.T) (*extraction.Engine, *fsstore.Store) {
	t.Helper()
	store, err := fsstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("fsstore.New: %v", err)
	}
	engine := extraction.NewEngine(store, contentstore.SchemeFile, testBucket, "analysis-output", "transcripts", logging.NewNop())
	return engine, store
}

func seedAnalysisOutput(t *testing.T, store *fsstore.Store, jobID, modality string, doc extraction.ResultDocument) {
	t.Helper()
	ctx := context.Background()

	resultLocation := contentstore.Locator{
		Scheme: contentstore.SchemeFile,
		Bucket: testBucket,
		Key:    "analysis-output/" + jobID + "/inv-1/result.json",
	}
	resultBody, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := store.Put(ctx, resultLocation, resultBody, "application/json"); err != nil {
		t.Fatalf("put result: %v", err)
	}

	metadata := extraction.Metadata{
		SemanticModality: modality,
		OutputMetadata: []extraction.AssetMetadata{{
			SegmentMetadata: []extraction.SegmentMetadata{{
				StandardOutputPath: resultLocation.String(),
			}},
		}},
	}
	metadataBody, err := json.Marshal(metadata)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	metadataLocation := contentstore.Locator{
		Scheme: contentstore.SchemeFile,
		Bucket: testBucket,
		Key:    "analysis-output/" + jobID + "/inv-1/job_metadata.json",
	}
	if err := store.Put(ctx, metadataLocation, metadataBody, "application/json"); err != nil {
		t.Fatalf("put metadata: %v", err)
	}
}

func TestExtractStoresTranscript(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()

	seedAnalysisOutput(t, store, "job-1", "AUDIO", extraction.ResultDocument{
		Audio: &extraction.AudioContent{
			Transcript: extraction.Transcript{Representation: extraction.Representation{Text: "hello"}},
		},
	})

	result, err := engine.Extract(ctx, "job-1")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.Content != "MODALITY: audio\n\nAudio Transcript:\nhello" {
		t.Errorf("content = %q", result.Content)
	}
	if result.ContentLocation.Key != "transcripts/job-1/transcript.txt" {
		t.Errorf("content location = %q", result.ContentLocation.Key)
	}

	stored, err := store.Get(ctx, result.ContentLocation)
	if err != nil {
		t.Fatalf("get stored content: %v", err)
	}
	if string(stored) != result.Content {
		t.Errorf("stored content differs: %q", stored)
	}
}

func TestExtractNoOutputIsExtractionError(t *testing.T) {
	engine, _ := newEngine(t)
	_, err := engine.Extract(context.Background(), "job-missing")
	if !errors.Is(err, jobs.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if !strings.Contains(err.Error(), "no analysis output found") {
		t.Errorf("error = %v", err)
	}
}

func TestExtractMissingMetadataFile(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()

	loc := contentstore.Locator{Scheme: contentstore.SchemeFile, Bucket: testBucket, Key: "analysis-output/job-2/other.json"}
	if err := store.Put(ctx, loc, []byte("{}"), ""); err != nil {
		t.Fatalf("put: %v", err)
	}

	_, err := engine.Extract(ctx, "job-2")
	if !errors.Is(err, jobs.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if !strings.Contains(err.Error(), "job_metadata.json not found") {
		t.Errorf("error = %v", err)
	}
}

func TestExtractInvalidMetadataStructure(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()

	loc := contentstore.Locator{Scheme: contentstore.SchemeFile, Bucket: testBucket, Key: "analysis-output/job-3/job_metadata.json"}
	if err := store.Put(ctx, loc, []byte(`{"semantic_modality":"AUDIO"}`), ""); err != nil {
		t.Fatalf("put: %v", err)
	}

	_, err := engine.Extract(ctx, "job-3")
	if !errors.Is(err, jobs.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if !strings.Contains(err.Error(), "no output metadata") {
		t.Errorf("error = %v", err)
	}
}

func TestExtractNoExtractableContent(t *testing.T) {
	engine, store := newEngine(t)
	seedAnalysisOutput(t, store, "job-4", "IMAGE", extraction.ResultDocument{})

	_, err := engine.Extract(context.Background(), "job-4")
	if !errors.Is(err, jobs.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if !strings.Contains(err.Error(), "no extractable content") {
		t.Errorf("error = %v", err)
	}
}

func TestStepRecordsLocations(t *testing.T) {
	engine, store := newEngine(t)
	jobStore := testsupport.MustOpenStore(t)
	ctx := context.Background()

	record := testsupport.NewJob(t, jobStore, "job-5", "user-a")
	for _, status := range []jobs.Status{jobs.StatusPreprocessed, jobs.StatusAnalysisProcessing} {
		var err error
		record, err = jobStore.Apply(ctx, record.JobID, jobs.Update{Status: jobs.StatusPtr(status)})
		if err != nil {
			t.Fatalf("advance to %s: %v", status, err)
		}
	}

	seedAnalysisOutput(t, store, "job-5", "AUDIO", extraction.ResultDocument{
		Audio: &extraction.AudioContent{
			Transcript: extraction.Transcript{Representation: extraction.Representation{Text: "words"}},
		},
	})

	step := extraction.NewStep(jobStore, engine, logging.NewNop())
	if err := step.Prepare(ctx, record); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := step.Execute(ctx, record); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if record.Status != jobs.StatusExtractingResults {
		t.Errorf("status = %s", record.Status)
	}
	if record.ContentLocation == "" || record.AnalysisOutputLocation == "" {
		t.Errorf("locations not recorded: %+v", record)
	}
}

func TestStepPrepareRejectsWrongStatus(t *testing.T) {
	engine, _ := newEngine(t)
	jobStore := testsupport.MustOpenStore(t)
	record := testsupport.NewJob(t, jobStore, "job-6", "user-a")

	step := extraction.NewStep(jobStore, engine, logging.NewNop())
	err := step.Prepare(context.Background(), record)
	if !errors.Is(err, jobs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
