package config

const (
	defaultDataDir               = "~/.local/share/reelflow"
	defaultLogDir                = "~/.local/share/reelflow/logs"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultAnalysisDepth         = "standard"
	defaultResearchMaxItems      = 25
	defaultStalenessMinutes      = 60
	defaultRetryAttempts         = 3
	defaultRetryBaseSeconds      = 2
	defaultRetryMaxDelaySeconds  = 30
	defaultSourceUserAgent       = "Reelflow/0.1"
	defaultRedditBaseURL         = "https://www.reddit.com"
	defaultHackerNewsBaseURL     = "https://hn.algolia.com/api/v1"
	defaultGitHubBaseURL         = "https://api.github.com"
	defaultTrendsBaseURL         = "https://trends.google.com/trends/api"
	defaultSourceRequestTimeout  = 20
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "google/gemini-3-flash-preview"
	defaultLLMTimeoutSeconds     = 60
	defaultRenderAspectRatio     = "portrait"
	defaultRenderPollSeconds     = 5
	defaultRenderTimeoutMinutes  = 10
	defaultRenderRequestTimeout  = 30
	defaultSchedulerTickMinutes  = 60
	defaultFreshnessWindowHours  = 72
	defaultPublishRequestTimeout = 30
	defaultNotifyRequestTimeout  = 10
	defaultUserTier              = "free"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Identity: Identity{
			UserTier: defaultUserTier,
		},
		Research: Research{
			AnalysisDepth:       defaultAnalysisDepth,
			MaxItems:            defaultResearchMaxItems,
			StalenessMinutes:    defaultStalenessMinutes,
			RetryAttempts:       defaultRetryAttempts,
			RetryBaseSeconds:    defaultRetryBaseSeconds,
			RetryMaxDelaySecond: defaultRetryMaxDelaySeconds,
		},
		Sources: Sources{
			UserAgent:         defaultSourceUserAgent,
			RedditBaseURL:     defaultRedditBaseURL,
			HackerNewsBaseURL: defaultHackerNewsBaseURL,
			GitHubBaseURL:     defaultGitHubBaseURL,
			TrendsBaseURL:     defaultTrendsBaseURL,
			RequestTimeout:    defaultSourceRequestTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Render: Render{
			DefaultAspectRatio:  defaultRenderAspectRatio,
			PollIntervalSeconds: defaultRenderPollSeconds,
			TimeoutMinutes:      defaultRenderTimeoutMinutes,
			RequestTimeout:      defaultRenderRequestTimeout,
		},
		Scheduler: Scheduler{
			Enabled:              true,
			TickIntervalMinutes:  defaultSchedulerTickMinutes,
			FreshnessWindowHours: defaultFreshnessWindowHours,
		},
		Publish: Publish{
			RequestTimeout: defaultPublishRequestTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Research:       true,
			Video:          true,
			Campaign:       true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
