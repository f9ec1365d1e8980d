package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeContent()
	c.normalizeAnalysis()
	c.normalizeCallback()
	c.normalizeResolver()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("MEDLEY_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	c.Paths.AllowedOrigin = strings.TrimSpace(c.Paths.AllowedOrigin)
	if c.Paths.AllowedOrigin == "" {
		c.Paths.AllowedOrigin = defaultAllowedOrigin
	}
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	if strings.TrimSpace(c.Store.TableName) == "" {
		c.Store.TableName = defaultStoreTableName
	}
	if strings.TrimSpace(c.Store.OperationIndex) == "" {
		c.Store.OperationIndex = defaultStoreOperationIndex
	}
	if c.Store.Region == "" {
		if value, ok := os.LookupEnv("AWS_REGION"); ok {
			c.Store.Region = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeContent() {
	c.Content.Backend = strings.ToLower(strings.TrimSpace(c.Content.Backend))
	if c.Content.Backend == "" {
		c.Content.Backend = defaultContentBackend
	}
	if strings.TrimSpace(c.Content.Bucket) == "" {
		c.Content.Bucket = defaultContentBucket
	}
	c.Content.RawPrefix = normalizePrefix(c.Content.RawPrefix, defaultRawPrefix)
	c.Content.WorkingPrefix = normalizePrefix(c.Content.WorkingPrefix, defaultWorkingPrefix)
	c.Content.OutputPrefix = normalizePrefix(c.Content.OutputPrefix, defaultOutputPrefix)
	c.Content.TranscriptPrefix = normalizePrefix(c.Content.TranscriptPrefix, defaultTranscriptPrefix)
}

func (c *Config) normalizeAnalysis() {
	c.Analysis.ProfileARN = strings.TrimSpace(c.Analysis.ProfileARN)
	c.Analysis.ProjectARN = strings.TrimSpace(c.Analysis.ProjectARN)
	if c.Analysis.Region == "" {
		if value, ok := os.LookupEnv("AWS_REGION"); ok {
			c.Analysis.Region = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeCallback() {
	c.Callback.Backend = strings.ToLower(strings.TrimSpace(c.Callback.Backend))
	if c.Callback.Backend == "" {
		c.Callback.Backend = defaultCallbackBackend
	}
}

func (c *Config) normalizeResolver() {
	if c.Resolver.MaxAttempts <= 0 {
		c.Resolver.MaxAttempts = defaultResolverMaxAttempts
	}
	if c.Resolver.InitialDelayMS <= 0 {
		c.Resolver.InitialDelayMS = defaultResolverInitialDelayMS
	}
	if c.Resolver.MaxDelayMS <= 0 {
		c.Resolver.MaxDelayMS = defaultResolverMaxDelayMS
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.PollInterval <= 0 {
		c.Workflow.PollInterval = defaultPollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.SuspendTimeout <= 0 {
		c.Workflow.SuspendTimeout = defaultSuspendTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizePrefix(value, fallback string) string {
	trimmed := strings.Trim(strings.TrimSpace(value), "/")
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
