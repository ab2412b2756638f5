package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LogFileName is the daemon log file created inside the configured log
// directory.
const LogFileName = "reelflow.log"

// Options controls logger construction.
type Options struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// Format is "console" or "json". Defaults to console.
	Format string
	// LogDir, when set, receives a JSON log file alongside console output.
	LogDir string
	// Console receives human-oriented output. Defaults to os.Stderr.
	Console io.Writer
}

// New builds a logger from the supplied options. When a log directory is
// configured, records fan out to both the console handler and a JSON file.
func New(opts Options) (*slog.Logger, error) {
	level := ParseLevel(opts.Level)
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var consoleHandler slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		consoleHandler = slog.NewJSONHandler(console, handlerOpts)
	} else {
		consoleHandler = slog.NewTextHandler(console, handlerOpts)
	}

	if strings.TrimSpace(opts.LogDir) == "" {
		return slog.New(consoleHandler), nil
	}

	if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	logPath := filepath.Join(opts.LogDir, LogFileName)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	fileHandler := slog.NewJSONHandler(file, handlerOpts)
	return slog.New(NewFanoutHandler(consoleHandler, fileHandler)), nil
}

// ParseLevel converts a config string into a slog level, defaulting to info.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
