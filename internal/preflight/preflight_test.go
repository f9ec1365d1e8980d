package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"medley/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	if result := CheckDirectoryAccess("Data directory", dir); !result.Passed {
		t.Fatalf("expected pass, got %q", result.Detail)
	}

	if result := CheckDirectoryAccess("Data directory", filepath.Join(dir, "missing")); result.Passed {
		t.Fatal("missing directory should fail")
	}

	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if result := CheckDirectoryAccess("Data directory", file); result.Passed {
		t.Fatal("plain file should fail")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckDiskSpace("Content disk space", dir, 1); !result.Passed {
		t.Fatalf("expected pass, got %q", result.Detail)
	}
	if result := CheckDiskSpace("Content disk space", dir, ^uint64(0)); result.Passed {
		t.Fatal("impossible free-space requirement should fail")
	}
	if result := CheckDiskSpace("Content disk space", filepath.Join(dir, "missing"), 1); result.Passed {
		t.Fatal("missing path should fail")
	}
}

func TestCheckDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	if result := CheckDatabase(context.Background(), path); !result.Passed {
		t.Fatalf("expected pass, got %q", result.Detail)
	}
}

func TestRunAllWithTestConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := RunAll(context.Background(), cfg)
	if len(results) == 0 {
		t.Fatal("expected checks to run")
	}
	if failures := Failures(results); len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil, got %v", results)
	}
}
