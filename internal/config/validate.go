package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateContent(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateCallback(); err != nil {
		return err
	}
	if err := c.validateResolver(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case "sqlite", "dynamodb":
	default:
		return fmt.Errorf("store.backend must be \"sqlite\" or \"dynamodb\", got %q", c.Store.Backend)
	}
	if c.Store.Backend == "dynamodb" && c.Store.Region == "" {
		return errors.New("store.region is required for the dynamodb backend. Set it or export AWS_REGION")
	}
	return nil
}

func (c *Config) validateContent() error {
	switch c.Content.Backend {
	case "fs", "s3":
	default:
		return fmt.Errorf("content.backend must be \"fs\" or \"s3\", got %q", c.Content.Backend)
	}
	if c.Content.Bucket == "" {
		return errors.New("content.bucket must be set")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	// ARNs are only required when the analysis service is actually reachable,
	// which the daemon checks at startup; an empty pair is a valid local setup.
	if (c.Analysis.ProfileARN == "") != (c.Analysis.ProjectARN == "") {
		return errors.New("analysis.profile_arn and analysis.project_arn must be set together")
	}
	return nil
}

func (c *Config) validateCallback() error {
	switch c.Callback.Backend {
	case "local", "stepfunctions":
	default:
		return fmt.Errorf("callback.backend must be \"local\" or \"stepfunctions\", got %q", c.Callback.Backend)
	}
	if c.Callback.Backend == "stepfunctions" && c.Callback.Region == "" {
		return errors.New("callback.region is required for the stepfunctions backend")
	}
	return nil
}

func (c *Config) validateResolver() error {
	if c.Resolver.MaxAttempts < 1 {
		return errors.New("resolver.max_attempts must be at least 1")
	}
	if c.Resolver.MaxDelayMS < c.Resolver.InitialDelayMS {
		return errors.New("resolver.max_delay_ms must not be below resolver.initial_delay_ms")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}
