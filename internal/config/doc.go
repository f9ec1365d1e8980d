// Package config loads, normalizes, and validates Medley configuration
// from TOML, applying repository defaults for unset values.
package config
