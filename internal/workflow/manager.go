// Package workflow drives job records through the processing pipeline. A
// polling loop picks up actionable records, runs the step registered for
// their status, suspends on the continuation token after analysis is
// invoked, and resumes when the resolver delivers the outcome. With an
// external callback backend the wait lives outside the process and Resume
// continues the job when its notification arrives. Every step failure is
// routed through the finalizer.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"medley/internal/config"
	"medley/internal/continuation"
	"medley/internal/finalizer"
	"medley/internal/jobs"
	"medley/internal/jobstore"
	"medley/internal/logging"
	"medley/internal/stage"
)

// Steps collects the pipeline step handlers in execution order.
type Steps struct {
	Preprocess stage.Handler
	Invoke     stage.Handler
	Extract    stage.Handler
	Complete   stage.Handler
}

type namedStep struct {
	name    string
	handler stage.Handler
}

// Manager coordinates pipeline processing over the job store.
type Manager struct {
	cfg      *config.Config
	store    jobstore.Store
	registry *continuation.Registry
	final    *finalizer.Finalizer
	logger   *slog.Logger

	steps map[jobs.Status]namedStep

	pollInterval   time.Duration
	errorRetry     time.Duration
	suspendTimeout time.Duration
	localCallback  bool

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	runCtx     context.Context
	wg         sync.WaitGroup
	inflight   map[string]struct{}
	lastErr    error
	lastRecord *jobs.Record
}

// NewManager constructs a workflow manager. The registry must be the same
// one the invoke step issues tokens from; with the local callback backend
// it is also where the resolver delivers outcomes. With an external backend
// runs are not parked in-process and come back through Resume instead.
func NewManager(cfg *config.Config, store jobstore.Store, registry *continuation.Registry, steps Steps, final *finalizer.Finalizer, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		store:    store,
		registry: registry,
		final:    final,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		steps: map[jobs.Status]namedStep{
			jobs.StatusInitializing:       {name: "preprocess", handler: steps.Preprocess},
			jobs.StatusPreprocessed:       {name: "invoke-analysis", handler: steps.Invoke},
			jobs.StatusAnalysisProcessing: {name: "extract-results", handler: steps.Extract},
			jobs.StatusExtractingResults:  {name: "complete", handler: steps.Complete},
		},
		pollInterval:   time.Duration(cfg.Workflow.PollInterval) * time.Second,
		errorRetry:     time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		suspendTimeout: time.Duration(cfg.Workflow.SuspendTimeout) * time.Second,
		localCallback:  cfg.Callback.Backend == "" || cfg.Callback.Backend == "local",
		inflight:       make(map[string]struct{}),
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	for status, step := range m.steps {
		if step.handler == nil {
			return errors.New("no step configured for status " + string(status))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.runCtx = runCtx
	m.running = true
	m.wg.Add(1)
	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for in-flight work.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.runCtx = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Resume picks a job back up after its analysis outcome arrived through an
// external callback backend, where no run is parked in-process. A failed
// outcome finalizes the job; a successful one re-dispatches it through the
// remaining steps.
func (m *Manager) Resume(ctx context.Context, jobID string, outcome continuation.Outcome) error {
	record, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if record.Status != jobs.StatusAnalysisProcessing {
		return jobs.Wrap(jobs.ErrValidation, "resume", "check status",
			"job not awaiting an analysis outcome: status "+string(record.Status), nil)
	}

	if !outcome.Success {
		m.setLastError(m.finalizeOutcome(ctx, record, outcome))
		m.setLastRecord(record)
		return nil
	}

	for {
		m.mu.RLock()
		running := m.running
		runCtx := m.runCtx
		m.mu.RUnlock()
		if !running {
			return jobs.Wrap(jobs.ErrInternal, "resume", "dispatch job", "workflow not running", nil)
		}
		if m.dispatch(runCtx, record) {
			return nil
		}

		// The pass that parked the job may still hold its in-flight slot.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
		updated, err := m.store.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if updated.Status != jobs.StatusAnalysisProcessing {
			return nil
		}
		record = updated
	}
}
