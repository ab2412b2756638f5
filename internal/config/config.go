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

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Identity carries the workspace/user identity the pipeline stamps onto the
// entities it creates. Authentication itself happens outside the daemon.
type Identity struct {
	WorkspaceID string `toml:"workspace_id"`
	UserID      string `toml:"user_id"`
	UserTier    string `toml:"user_tier"`
}

// Research contains configuration for research job execution.
type Research struct {
	AnalysisDepth       string `toml:"analysis_depth"`
	MaxItems            int    `toml:"max_items"`
	StalenessMinutes    int    `toml:"staleness_minutes"`
	RetryAttempts       int    `toml:"retry_attempts"`
	RetryBaseSeconds    int    `toml:"retry_base_seconds"`
	RetryMaxDelaySecond int    `toml:"retry_max_delay_seconds"`
}

// Sources contains per-source collector settings.
type Sources struct {
	UserAgent         string `toml:"user_agent"`
	RedditBaseURL     string `toml:"reddit_base_url"`
	HackerNewsBaseURL string `toml:"hackernews_base_url"`
	GitHubBaseURL     string `toml:"github_base_url"`
	GitHubToken       string `toml:"github_token"`
	TrendsBaseURL     string `toml:"trends_base_url"`
	RequestTimeout    int    `toml:"request_timeout"`
}

// LLM contains connection settings for the analysis provider.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Render contains configuration for the avatar render provider.
type Render struct {
	APIKey               string `toml:"api_key"`
	BaseURL              string `toml:"base_url"`
	DefaultAvatarProfile string `toml:"default_avatar_profile"`
	DefaultAspectRatio   string `toml:"default_aspect_ratio"`
	PollIntervalSeconds  int    `toml:"poll_interval_seconds"`
	TimeoutMinutes       int    `toml:"timeout_minutes"`
	RequestTimeout       int    `toml:"request_timeout"`
}

// Scheduler contains campaign scheduler timing.
type Scheduler struct {
	Enabled              bool `toml:"enabled"`
	TickIntervalMinutes  int  `toml:"tick_interval_minutes"`
	FreshnessWindowHours int  `toml:"freshness_window_hours"`
}

// Publish contains multi-platform publishing settings.
type Publish struct {
	BaseURL        string   `toml:"base_url"`
	APIKey         string   `toml:"api_key"`
	Platforms      []string `toml:"platforms"`
	RequestTimeout int      `toml:"request_timeout"`
}

// Webhook contains settings for the inbound callback HTTP listener. An
// empty bind address disables the listener.
type Webhook struct {
	Bind      string `toml:"bind"`
	AuthToken string `toml:"auth_token"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Research       bool   `toml:"research"`
	Video          bool   `toml:"video"`
	Campaign       bool   `toml:"campaign"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reelflow.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Identity: workspace/user identity stamped onto pipeline entities
//   - Research: analysis depth, retry policy, staleness threshold
//   - Sources: external research source endpoints
//   - LLM: analysis provider connection settings
//   - Render: avatar render provider connection and polling budget
//   - Scheduler: campaign tick interval and freshness window
//   - Publish: multi-platform publisher settings
//   - Webhook: inbound render callback listener
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Identity      Identity      `toml:"identity"`
	Research      Research      `toml:"research"`
	Sources       Sources       `toml:"sources"`
	LLM           LLM           `toml:"llm"`
	Render        Render        `toml:"render"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Publish       Publish       `toml:"publish"`
	Webhook       Webhook       `toml:"webhook"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reelflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
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

	projectPath, err := filepath.Abs("reelflow.toml")
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

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the unix socket path used for daemon IPC.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "reelflowd.sock")
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

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
