// Package logging configures structured slog output for the daemon and CLI
// and provides the shared attribute vocabulary used across pipeline
// components.
package logging
