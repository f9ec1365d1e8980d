package main

import (
	"strings"
	"testing"
)

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"Job ID", "Status"},
		[][]string{
			{"job-1", "Completed"},
			{"job-2"},
		},
	)

	for _, want := range []string{"Job ID", "Status", "job-1", "Completed", "job-2"} {
		requireContains(t, out, want)
	}
	if lines := strings.Split(out, "\n"); len(lines) < 4 {
		t.Fatalf("expected bordered table, got %d lines:\n%s", len(lines), out)
	}
}

func TestRenderTableEmptyHeaders(t *testing.T) {
	if out := renderTable(nil, nil); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}
