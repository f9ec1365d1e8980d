package workflow

import (
	"context"

	"medley/internal/jobs"
	"medley/internal/logging"
	"medley/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	LastError  string
	LastRecord *jobs.Record
	JobCounts  map[jobs.Status]int
	StepHealth map[string]stage.Health
}

// Status returns the latest workflow information, including per-step health.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastRecord := m.lastRecord
	m.mu.RUnlock()

	counts := make(map[jobs.Status]int)
	records, err := m.store.List(ctx, "")
	if err != nil {
		m.logger.Warn("failed to read job counts", logging.Error(err))
	}
	for _, record := range records {
		counts[record.Status]++
	}

	health := make(map[string]stage.Health, len(m.steps))
	for _, step := range m.steps {
		if step.handler == nil {
			continue
		}
		health[step.name] = step.handler.HealthCheck(ctx)
	}

	summary := StatusSummary{Running: running, JobCounts: counts, StepHealth: health}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastRecord != nil {
		copied := *lastRecord
		summary.LastRecord = &copied
	}
	return summary
}

// Healthy reports whether every configured step passes its health check.
func (m *Manager) Healthy(ctx context.Context) bool {
	for _, step := range m.steps {
		if step.handler == nil {
			continue
		}
		if h := step.handler.HealthCheck(ctx); !h.Ready {
			return false
		}
	}
	return true
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastRecord(record *jobs.Record) {
	m.mu.Lock()
	if record != nil {
		copied := *record
		m.lastRecord = &copied
	} else {
		m.lastRecord = nil
	}
	m.mu.Unlock()
}
