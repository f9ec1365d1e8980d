// Package logging configures slog-based structured logging with JSON and
// console handlers, shared field names, and context-derived attributes.
package logging
