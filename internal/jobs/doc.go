// Package jobs defines the durable job record, the status state machine,
// and the closed error-kind set shared across the pipeline.
package jobs
