package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"medley/internal/completion"
	"medley/internal/config"
	"medley/internal/contentstore"
	"medley/internal/contentstore/fsstore"
	"medley/internal/continuation"
	"medley/internal/daemon"
	"medley/internal/extraction"
	"medley/internal/finalizer"
	"medley/internal/identity"
	"medley/internal/invoker"
	"medley/internal/jobs"
	"medley/internal/jobstore/sqlitestore"
	"medley/internal/logging"
	"medley/internal/preprocess"
	"medley/internal/resolver"
	"medley/internal/services/analysis"
	"medley/internal/testsupport"
	"medley/internal/workflow"
)

type env struct {
	cfg      *config.Config
	content  *fsstore.Store
	daemon   *daemon.Daemon
	external *recordingSender
	baseURL  string
	client   *http.Client
}

// recordingSender stands in for an external callback transport.
type recordingSender struct {
	mu        sync.Mutex
	successes int
	failures  int
}

func (s *recordingSender) SendSuccess(_ context.Context, _ string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes++
	return nil
}

func (s *recordingSender) SendFailure(_ context.Context, _, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	return nil
}

func newEnv(t *testing.T, opts ...testsupport.ConfigOption) *env {
	t.Helper()

	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{func(c *config.Config) {
		c.Workflow.PollInterval = 0
	}}, opts...)...)
	store, err := sqlitestore.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	content, err := fsstore.New(cfg.ObjectsDir())
	if err != nil {
		t.Fatalf("open content store: %v", err)
	}

	logger := logging.NewNop()
	registry := continuation.NewRegistry()
	final := finalizer.New(store, logger)
	engine := extraction.NewEngine(content, contentstore.SchemeFile, cfg.Content.Bucket,
		cfg.Content.OutputPrefix, cfg.Content.TranscriptPrefix, logger)
	steps := workflow.Steps{
		Preprocess: preprocess.New(store, content, contentstore.SchemeFile, cfg.Content.Bucket,
			cfg.Content.RawPrefix, cfg.Content.WorkingPrefix, logger),
		Invoke: invoker.New(store, analysis.Manual{}, registry, contentstore.SchemeFile,
			cfg.Content.Bucket, cfg.Content.OutputPrefix, logger),
		Extract:  extraction.NewStep(store, engine, logger),
		Complete: completion.New(store, logger),
	}
	manager := workflow.NewManager(cfg, store, registry, steps, final, logger)

	var sender continuation.Sender = registry
	var external *recordingSender
	if cfg.Callback.Backend != "local" {
		external = &recordingSender{}
		sender = external
	}
	res := resolver.New(store, sender, resolver.Options{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
	}, logger)

	d, err := daemon.New(cfg, store, content, manager, res, logger)
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	return &env{
		cfg:      cfg,
		content:  content,
		daemon:   d,
		external: external,
		baseURL:  "http://" + d.APIAddr(),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *env) do(t *testing.T, method, path, subject string, body []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.Paths.APIToken)
	if subject != "" {
		req.Header.Set(identity.SubjectHeader, subject)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, payload
}

func (e *env) seedAnalysisOutput(t *testing.T, jobID, transcript string) {
	t.Helper()
	ctx := context.Background()
	locator := func(key string) contentstore.Locator {
		return contentstore.Locator{Scheme: contentstore.SchemeFile, Bucket: e.cfg.Content.Bucket, Key: key}
	}

	resultKey := fmt.Sprintf("%s/%s/result.json", e.cfg.Content.OutputPrefix, jobID)
	metadata, _ := json.Marshal(extraction.Metadata{
		SemanticModality: extraction.ModalityAudio,
		OutputMetadata: []extraction.AssetMetadata{{
			SegmentMetadata: []extraction.SegmentMetadata{{
				StandardOutputPath: locator(resultKey).String(),
			}},
		}},
	})
	metadataKey := fmt.Sprintf("%s/%s/job_metadata.json", e.cfg.Content.OutputPrefix, jobID)
	if err := e.content.Put(ctx, locator(metadataKey), metadata, "application/json"); err != nil {
		t.Fatalf("put metadata: %v", err)
	}

	doc, _ := json.Marshal(extraction.ResultDocument{
		Audio: &extraction.AudioContent{
			Transcript: extraction.Transcript{Representation: extraction.Representation{Text: transcript}},
		},
	})
	if err := e.content.Put(ctx, locator(resultKey), doc, "application/json"); err != nil {
		t.Fatalf("put result document: %v", err)
	}
}

func (e *env) waitForJob(t *testing.T, jobID, subject string, pred func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	var last map[string]any
	for time.Now().Before(deadline) {
		resp, body := e.do(t, http.MethodGet, "/api/jobs/"+jobID, subject, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET job returned %d: %s", resp.StatusCode, body)
		}
		last = map[string]any{}
		if err := json.Unmarshal(body, &last); err != nil {
			t.Fatalf("decode job: %v", err)
		}
		if pred(last) {
			return last
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never met, last state: %v", last)
	return nil
}

func TestDaemonAPILifecycle(t *testing.T) {
	e := newEnv(t)

	resp, body := e.do(t, http.MethodPost, "/api/jobs?filename=memo.wav", "alice", []byte("fake audio bytes"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create returned %d: %s", resp.StatusCode, body)
	}
	var created jobs.Record
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode created job: %v", err)
	}
	if created.JobID == "" || created.OwnerID != "alice" {
		t.Fatalf("unexpected record: %+v", created)
	}

	// Another caller must not see alice's job.
	resp, _ = e.do(t, http.MethodGet, "/api/jobs/"+created.JobID, "mallory", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign caller, got %d", resp.StatusCode)
	}

	e.seedAnalysisOutput(t, created.JobID, "meeting notes transcript")

	state := e.waitForJob(t, created.JobID, "alice", func(m map[string]any) bool {
		op, _ := m["external_operation_id"].(string)
		return op != ""
	})
	operationID := state["external_operation_id"].(string)

	notification, _ := json.Marshal(resolver.Notification{
		OperationID: operationID,
		Succeeded:   true,
	})
	resp, body = e.do(t, http.MethodPost, "/api/notifications", "alice", notification)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("notification returned %d: %s", resp.StatusCode, body)
	}

	final := e.waitForJob(t, created.JobID, "alice", func(m map[string]any) bool {
		status, _ := m["status"].(string)
		return status == string(jobs.StatusCompleted)
	})
	content, _ := final["content"].(string)
	want := "MODALITY: audio\n\nAudio Transcript:\nmeeting notes transcript"
	if content != want {
		t.Fatalf("unexpected inlined content: %q", content)
	}

	// Listing is scoped to the caller.
	resp, body = e.do(t, http.MethodGet, "/api/jobs", "mallory", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list returned %d: %s", resp.StatusCode, body)
	}
	var listing struct {
		Jobs []jobs.Record `json:"jobs"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Jobs) != 0 {
		t.Fatalf("foreign caller should see no jobs, got %d", len(listing.Jobs))
	}
}

func TestDaemonExternalCallbackCompletesJob(t *testing.T) {
	e := newEnv(t, func(c *config.Config) {
		c.Callback.Backend = "stepfunctions"
		c.Callback.Region = "us-east-1"
	})

	resp, body := e.do(t, http.MethodPost, "/api/jobs?filename=memo.wav", "alice", []byte("fake audio bytes"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create returned %d: %s", resp.StatusCode, body)
	}
	var created jobs.Record
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode created job: %v", err)
	}
	e.seedAnalysisOutput(t, created.JobID, "external callback transcript")

	state := e.waitForJob(t, created.JobID, "alice", func(m map[string]any) bool {
		op, _ := m["external_operation_id"].(string)
		return op != ""
	})
	operationID := state["external_operation_id"].(string)

	notification, _ := json.Marshal(resolver.Notification{
		OperationID: operationID,
		Succeeded:   true,
	})
	resp, body = e.do(t, http.MethodPost, "/api/notifications", "alice", notification)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("notification returned %d: %s", resp.StatusCode, body)
	}

	e.waitForJob(t, created.JobID, "alice", func(m map[string]any) bool {
		status, _ := m["status"].(string)
		return status == string(jobs.StatusCompleted)
	})

	e.external.mu.Lock()
	delivered := e.external.successes
	e.external.mu.Unlock()
	if delivered != 1 {
		t.Fatalf("expected 1 external callback, got %d", delivered)
	}
}

func TestDaemonAPIRejectsBadRequests(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(t, http.MethodPost, "/api/jobs", "alice", []byte("bytes"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing filename should be 400, got %d", resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodPost, "/api/jobs?filename=a.wav", "alice", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty media should be 400, got %d", resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodGet, "/api/jobs/does-not-exist", "alice", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing job should be 404, got %d", resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodGet, "/api/jobs", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing subject should be 401, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, e.baseURL+"/api/jobs", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(identity.SubjectHeader, "alice")
	resp2, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing bearer token should be 401, got %d", resp2.StatusCode)
	}
}

func TestDaemonHealthEndpoint(t *testing.T) {
	e := newEnv(t)

	resp, body := e.do(t, http.MethodGet, "/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health returned %d: %s", resp.StatusCode, body)
	}
	var health struct {
		Running bool `json:"running"`
		Healthy bool `json:"healthy"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if !health.Running || !health.Healthy {
		t.Fatalf("expected running and healthy: %+v", health)
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	e := newEnv(t)

	store, err := sqlitestore.Open(e.cfg.DatabasePath() + ".second")
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	defer store.Close()

	logger := logging.NewNop()
	registry := continuation.NewRegistry()
	steps := workflow.Steps{
		Preprocess: preprocess.New(store, e.content, contentstore.SchemeFile, e.cfg.Content.Bucket,
			e.cfg.Content.RawPrefix, e.cfg.Content.WorkingPrefix, logger),
		Invoke: invoker.New(store, analysis.Manual{}, registry, contentstore.SchemeFile,
			e.cfg.Content.Bucket, e.cfg.Content.OutputPrefix, logger),
		Extract: extraction.NewStep(store, extraction.NewEngine(e.content, contentstore.SchemeFile,
			e.cfg.Content.Bucket, e.cfg.Content.OutputPrefix, e.cfg.Content.TranscriptPrefix, logger), logger),
		Complete: completion.New(store, logger),
	}
	manager := workflow.NewManager(e.cfg, store, registry, steps, finalizer.New(store, logger), logger)
	res := resolver.New(store, registry, resolver.DefaultOptions(), logger)

	second, err := daemon.New(e.cfg, store, e.content, manager, res, logger)
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second daemon should not acquire the lock")
	}
}

func TestDaemonHealthCORSPreflight(t *testing.T) {
	e := newEnv(t)

	req, err := http.NewRequest(http.MethodOptions, e.baseURL+"/api/jobs", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight should be 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != e.cfg.Paths.AllowedOrigin {
		t.Fatalf("unexpected allow-origin: %q", got)
	}
}
