// Package stage defines the contract between the workflow driver and the
// pipeline steps it runs.
package stage

import (
	"context"

	"medley/internal/jobs"
)

// Handler describes the contract the workflow driver needs from each step.
// Prepare validates preconditions without side effects; Execute performs the
// step and patches the job record through the store.
type Handler interface {
	Prepare(context.Context, *jobs.Record) error
	Execute(context.Context, *jobs.Record) error
	HealthCheck(context.Context) Health
}

// Health summarizes the readiness of a pipeline step.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
