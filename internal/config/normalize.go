package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeResearch()
	c.normalizeSources()
	c.normalizeLLM()
	c.normalizeRender()
	c.normalizeScheduler()
	c.normalizePublish()
	c.normalizeWebhook()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeResearch() {
	c.Research.AnalysisDepth = strings.ToLower(strings.TrimSpace(c.Research.AnalysisDepth))
	if c.Research.AnalysisDepth == "" {
		c.Research.AnalysisDepth = defaultAnalysisDepth
	}
	if c.Research.MaxItems <= 0 {
		c.Research.MaxItems = defaultResearchMaxItems
	}
	if c.Research.StalenessMinutes <= 0 {
		c.Research.StalenessMinutes = defaultStalenessMinutes
	}
	if c.Research.RetryAttempts <= 0 {
		c.Research.RetryAttempts = defaultRetryAttempts
	}
	if c.Research.RetryBaseSeconds <= 0 {
		c.Research.RetryBaseSeconds = defaultRetryBaseSeconds
	}
	if c.Research.RetryMaxDelaySecond <= 0 {
		c.Research.RetryMaxDelaySecond = defaultRetryMaxDelaySeconds
	}
}

func (c *Config) normalizeSources() {
	if strings.TrimSpace(c.Sources.UserAgent) == "" {
		c.Sources.UserAgent = defaultSourceUserAgent
	}
	if strings.TrimSpace(c.Sources.RedditBaseURL) == "" {
		c.Sources.RedditBaseURL = defaultRedditBaseURL
	}
	if strings.TrimSpace(c.Sources.HackerNewsBaseURL) == "" {
		c.Sources.HackerNewsBaseURL = defaultHackerNewsBaseURL
	}
	if strings.TrimSpace(c.Sources.GitHubBaseURL) == "" {
		c.Sources.GitHubBaseURL = defaultGitHubBaseURL
	}
	if strings.TrimSpace(c.Sources.TrendsBaseURL) == "" {
		c.Sources.TrendsBaseURL = defaultTrendsBaseURL
	}
	if c.Sources.RequestTimeout <= 0 {
		c.Sources.RequestTimeout = defaultSourceRequestTimeout
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeRender() {
	c.Render.APIKey = strings.TrimSpace(c.Render.APIKey)
	c.Render.BaseURL = strings.TrimRight(strings.TrimSpace(c.Render.BaseURL), "/")
	c.Render.DefaultAspectRatio = strings.ToLower(strings.TrimSpace(c.Render.DefaultAspectRatio))
	if c.Render.DefaultAspectRatio == "" {
		c.Render.DefaultAspectRatio = defaultRenderAspectRatio
	}
	if c.Render.PollIntervalSeconds <= 0 {
		c.Render.PollIntervalSeconds = defaultRenderPollSeconds
	}
	if c.Render.TimeoutMinutes <= 0 {
		c.Render.TimeoutMinutes = defaultRenderTimeoutMinutes
	}
	if c.Render.RequestTimeout <= 0 {
		c.Render.RequestTimeout = defaultRenderRequestTimeout
	}
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.TickIntervalMinutes <= 0 {
		c.Scheduler.TickIntervalMinutes = defaultSchedulerTickMinutes
	}
	if c.Scheduler.FreshnessWindowHours <= 0 {
		c.Scheduler.FreshnessWindowHours = defaultFreshnessWindowHours
	}
}

func (c *Config) normalizePublish() {
	c.Publish.BaseURL = strings.TrimRight(strings.TrimSpace(c.Publish.BaseURL), "/")
	if c.Publish.RequestTimeout <= 0 {
		c.Publish.RequestTimeout = defaultPublishRequestTimeout
	}
	platforms := make([]string, 0, len(c.Publish.Platforms))
	for _, platform := range c.Publish.Platforms {
		platform = strings.ToLower(strings.TrimSpace(platform))
		if platform != "" {
			platforms = append(platforms, platform)
		}
	}
	c.Publish.Platforms = platforms
}

func (c *Config) normalizeWebhook() {
	c.Webhook.Bind = strings.TrimSpace(c.Webhook.Bind)
	c.Webhook.AuthToken = strings.TrimSpace(c.Webhook.AuthToken)
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
	c.Identity.UserTier = strings.ToLower(strings.TrimSpace(c.Identity.UserTier))
	if c.Identity.UserTier == "" {
		c.Identity.UserTier = defaultUserTier
	}
}
