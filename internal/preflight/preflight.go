// Package preflight provides readiness checks for the directories,
// database, and backends the daemon depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and refuses to serve when a check
//     fails, so misconfiguration surfaces before jobs are accepted.
//   - The CLI status command uses individual check functions to display
//     component health.
package preflight

import (
	"context"
	"fmt"

	"medley/internal/config"
	"medley/internal/jobstore/sqlitestore"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// minFreeBytes is the disk headroom required under the data directory.
// Working copies of media double the footprint of each in-flight job.
const minFreeBytes = 1 << 30

// RunAll executes all applicable preflight checks for the given config.
// Backend-specific checks only run for the configured backend.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	if cfg.Store.Backend == "sqlite" {
		results = append(results, CheckDatabase(ctx, cfg.DatabasePath()))
	}
	if cfg.Content.Backend == "fs" {
		results = append(results, CheckDiskSpace("Content disk space", cfg.Paths.DataDir, minFreeBytes))
	}

	return results
}

// Failures extracts the failed checks as formatted strings.
func Failures(results []Result) []string {
	var failures []string
	for _, r := range results {
		if !r.Passed {
			failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	return failures
}

// CheckDatabase verifies the job database opens and responds to a ping.
func CheckDatabase(ctx context.Context, path string) Result {
	const name = "Job database"
	store, err := sqlitestore.Open(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: open: %v)", path, err)}
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: ping: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (ok)", path)}
}
