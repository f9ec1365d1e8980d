package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir       string `toml:"data_dir"`
	LogDir        string `toml:"log_dir"`
	APIBind       string `toml:"api_bind"`
	APIToken      string `toml:"api_token"`
	AllowedOrigin string `toml:"allowed_origin"`
}

// Store contains configuration for the durable job record store.
type Store struct {
	Backend        string `toml:"backend"` // "sqlite" or "dynamodb"
	TableName      string `toml:"table_name"`
	OperationIndex string `toml:"operation_index"`
	Region         string `toml:"region"`
}

// Content contains configuration for the object store holding media and artifacts.
type Content struct {
	Backend          string `toml:"backend"` // "fs" or "s3"
	Bucket           string `toml:"bucket"`
	RawPrefix        string `toml:"raw_prefix"`
	WorkingPrefix    string `toml:"working_prefix"`
	OutputPrefix     string `toml:"output_prefix"`
	TranscriptPrefix string `toml:"transcript_prefix"`
}

// Analysis contains configuration for the external asynchronous analysis service.
type Analysis struct {
	ProfileARN string `toml:"profile_arn"`
	ProjectARN string `toml:"project_arn"`
	Region     string `toml:"region"`
}

// Callback contains configuration for the workflow callback transport.
type Callback struct {
	Backend string `toml:"backend"` // "local" or "stepfunctions"
	Region  string `toml:"region"`
}

// Resolver contains retry tuning for completion-notification resolution.
// The secondary index joining operation ids to jobs is eventually consistent,
// so lookups retry with exponential backoff.
type Resolver struct {
	MaxAttempts    int `toml:"max_attempts"`
	InitialDelayMS int `toml:"initial_delay_ms"`
	MaxDelayMS     int `toml:"max_delay_ms"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	PollInterval       int `toml:"poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	SuspendTimeout     int `toml:"suspend_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Medley.
//
// Configuration sections by subsystem:
//   - Paths: directories, API bind address, and API auth
//   - Store: job record store backend (sqlite or dynamodb)
//   - Content: object store backend (fs or s3) and key prefixes
//   - Analysis: async analysis service identifiers
//   - Callback: workflow callback transport (local or stepfunctions)
//   - Resolver: notification-resolution retry tuning
//   - Workflow: daemon polling intervals and timeouts
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Store    Store    `toml:"store"`
	Content  Content  `toml:"content"`
	Analysis Analysis `toml:"analysis"`
	Callback Callback `toml:"callback"`
	Resolver Resolver `toml:"resolver"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/medley/config.toml")
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("medley.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// DatabasePath returns the SQLite job database location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "medley.db")
}

// ObjectsDir returns the filesystem content store root under the data dir.
func (c *Config) ObjectsDir() string {
	return filepath.Join(c.Paths.DataDir, "objects")
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir}
	if strings.TrimSpace(c.Paths.DataDir) != "" && (c.Content.Backend == "fs" || c.Store.Backend == "sqlite") {
		dirs = append(dirs, c.Paths.DataDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
