package testsupport

import (
	"path/filepath"
	"testing"

	"reelflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.LLM.APIKey = "test"
	cfg.Render.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithScheduler enables the campaign scheduler on the test config.
func WithScheduler(enabled bool) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Scheduler.Enabled = enabled
	}
}

// WithPlatforms overrides the default publish platform list.
func WithPlatforms(platforms ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Publish.Platforms = platforms
	}
}
