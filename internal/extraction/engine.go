package extraction

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"medley/internal/contentstore"
	"medley/internal/jobs"
	"medley/internal/logging"
)

// Metadata is the analysis job metadata document written next to the
// result set. The first segment's standard output path locates the result
// document.
type Metadata struct {
	SemanticModality string          `json:"semantic_modality,omitempty"`
	OutputMetadata   []AssetMetadata `json:"output_metadata,omitempty"`
}

type AssetMetadata struct {
	SegmentMetadata []SegmentMetadata `json:"segment_metadata,omitempty"`
}

type SegmentMetadata struct {
	StandardOutputPath string `json:"standard_output_path,omitempty"`
}

const metadataFilename = "job_metadata.json"

// Result is the product of a successful extraction run.
type Result struct {
	Content         string
	Kind            string
	Modality        string
	ContentLocation contentstore.Locator
	ResultsLocation contentstore.Locator
}

// Engine locates analysis output, composes the labeled artifact, and stores
// it under the transcript prefix.
type Engine struct {
	store            contentstore.Store
	scheme           string
	bucket           string
	outputPrefix     string
	transcriptPrefix string
	logger           *slog.Logger
}

// NewEngine builds an extraction engine over the given content store.
func NewEngine(store contentstore.Store, scheme, bucket, outputPrefix, transcriptPrefix string, logger *slog.Logger) *Engine {
	return &Engine{
		store:            store,
		scheme:           scheme,
		bucket:           bucket,
		outputPrefix:     strings.Trim(outputPrefix, "/"),
		transcriptPrefix: strings.Trim(transcriptPrefix, "/"),
		logger:           logging.NewComponentLogger(logger, "extraction"),
	}
}

// OutputPrefix returns the locator under which a job's analysis output lives.
func (e *Engine) OutputPrefix(jobID string) contentstore.Locator {
	return contentstore.Locator{Scheme: e.scheme, Bucket: e.bucket, Key: e.outputPrefix}.Join(jobID)
}

// Extract runs the full pipeline for one job: find metadata, follow the
// standard output path, compose content, and store the artifact.
func (e *Engine) Extract(ctx context.Context, jobID string) (*Result, error) {
	log := logging.WithContext(ctx, e.logger)

	metadata, err := e.loadMetadata(ctx, jobID)
	if err != nil {
		return nil, err
	}

	resultsLocation, err := e.standardOutputLocation(metadata, jobID)
	if err != nil {
		return nil, err
	}

	resultBody, err := e.store.Get(ctx, resultsLocation)
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrExtraction, "extract", "download result document", resultsLocation.String(), err)
	}
	var doc ResultDocument
	if err := json.Unmarshal(resultBody, &doc); err != nil {
		return nil, jobs.Wrap(jobs.ErrExtraction, "extract", "parse result document", resultsLocation.String(), err)
	}

	content, kind, ok := Compose(metadata.SemanticModality, &doc)
	if !ok {
		return nil, jobs.Wrap(jobs.ErrExtraction, "extract", "compose content",
			"no extractable content for modality "+metadata.SemanticModality, nil)
	}

	contentLocation := contentstore.Locator{Scheme: e.scheme, Bucket: e.bucket, Key: e.transcriptPrefix}.
		Join(jobID, "transcript.txt")
	if err := e.store.Put(ctx, contentLocation, []byte(content), "text/plain"); err != nil {
		return nil, jobs.Wrap(jobs.ErrExtraction, "extract", "store content", contentLocation.String(), err)
	}

	log.Info("content extracted",
		logging.String(logging.FieldModality, metadata.SemanticModality),
		logging.String("content_kind", kind),
		logging.Int("content_length", len(content)),
		logging.String("content_location", contentLocation.String()))

	return &Result{
		Content:         content,
		Kind:            kind,
		Modality:        metadata.SemanticModality,
		ContentLocation: contentLocation,
		ResultsLocation: resultsLocation,
	}, nil
}

func (e *Engine) loadMetadata(ctx context.Context, jobID string) (*Metadata, error) {
	prefix := e.OutputPrefix(jobID)
	objects, err := e.store.List(ctx, prefix)
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrExtraction, "extract", "list analysis output", prefix.String(), err)
	}
	if len(objects) == 0 {
		return nil, jobs.Wrap(jobs.ErrExtraction, "extract", "list analysis output",
			"no analysis output found for job "+jobID, nil)
	}

	var metadataLocation contentstore.Locator
	for _, object := range objects {
		if strings.HasSuffix(object.Key, metadataFilename) {
			metadataLocation = object
			break
		}
	}
	if metadataLocation.IsZero() {
		return nil, jobs.Wrap(jobs.ErrExtraction, "extract", "find metadata",
			metadataFilename+" not found in analysis output for job "+jobID, nil)
	}

	body, err := e.store.Get(ctx, metadataLocation)
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrExtraction, "extract", "download metadata", metadataLocation.String(), err)
	}
	var metadata Metadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, jobs.Wrap(jobs.ErrExtraction, "extract", "parse metadata", metadataLocation.String(), err)
	}
	return &metadata, nil
}

func (e *Engine) standardOutputLocation(metadata *Metadata, jobID string) (contentstore.Locator, error) {
	if len(metadata.OutputMetadata) == 0 {
		return contentstore.Locator{}, jobs.Wrap(jobs.ErrExtraction, "extract", "read metadata",
			"no output metadata for job "+jobID, nil)
	}
	segments := metadata.OutputMetadata[0].SegmentMetadata
	if len(segments) == 0 {
		return contentstore.Locator{}, jobs.Wrap(jobs.ErrExtraction, "extract", "read metadata",
			"no segment metadata for job "+jobID, nil)
	}
	path := segments[0].StandardOutputPath
	if path == "" {
		return contentstore.Locator{}, jobs.Wrap(jobs.ErrExtraction, "extract", "read metadata",
			"no standard output path for job "+jobID, nil)
	}
	location, err := contentstore.ParseLocator(path)
	if err != nil {
		return contentstore.Locator{}, jobs.Wrap(jobs.ErrExtraction, "extract", "read metadata",
			"invalid standard output path "+path, err)
	}
	return location, nil
}
