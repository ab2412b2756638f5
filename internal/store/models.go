package store

import (
	"strings"
	"time"
)

// Source identifies an external research data source.
type Source string

const (
	SourceReddit     Source = "reddit"
	SourceGitHub     Source = "github"
	SourceHackerNews Source = "hackernews"
	SourceTrends     Source = "trends"
)

var allSources = []Source{SourceReddit, SourceGitHub, SourceHackerNews, SourceTrends}

// AllSources returns the ordered list of known sources.
func AllSources() []Source {
	cp := make([]Source, len(allSources))
	copy(cp, allSources)
	return cp
}

// ParseSource converts a string into a known Source.
func ParseSource(value string) (Source, bool) {
	normalized := Source(strings.ToLower(strings.TrimSpace(value)))
	for _, source := range allSources {
		if source == normalized {
			return normalized, true
		}
	}
	return "", false
}

// Phase represents the lifecycle of a research job.
type Phase string

const (
	PhaseRaw      Phase = "raw"
	PhaseAnalyzed Phase = "analyzed"
	PhaseFailed   Phase = "failed"
)

// IsTerminal reports whether a research phase permits no further transition.
func (p Phase) IsTerminal() bool {
	return p == PhaseAnalyzed || p == PhaseFailed
}

// ParsePhase converts a string into a known Phase.
func ParsePhase(value string) (Phase, bool) {
	normalized := Phase(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case PhaseRaw, PhaseAnalyzed, PhaseFailed:
		return normalized, true
	}
	return "", false
}

// ResearchJob is one collect+analyze execution against one external source.
type ResearchJob struct {
	ID            string
	Source        Source
	Query         string
	Phase         Phase
	AnalysisDepth string
	RawData       string
	AnalyzedData  string
	ErrorMessage  string
	WorkspaceID   string
	UserID        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key returns the idempotency key for duplicate-start suppression.
func (j *ResearchJob) Key() string {
	return ResearchKey(j.Source, j.Query)
}

// ResearchKey builds the single-active-job key for a source/query pair.
func ResearchKey(source Source, query string) string {
	return string(source) + "\x00" + strings.ToLower(strings.TrimSpace(query))
}

// VideoStatus represents the lifecycle of a video generation.
type VideoStatus string

const (
	VideoQueued     VideoStatus = "queued"
	VideoProcessing VideoStatus = "processing"
	VideoCompleted  VideoStatus = "completed"
	VideoFailed     VideoStatus = "failed"
	VideoTimeout    VideoStatus = "timeout"
)

var videoStatuses = []VideoStatus{VideoQueued, VideoProcessing, VideoCompleted, VideoFailed, VideoTimeout}

// ParseVideoStatus converts a string into a known VideoStatus.
func ParseVideoStatus(value string) (VideoStatus, bool) {
	normalized := VideoStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range videoStatuses {
		if status == normalized {
			return normalized, true
		}
	}
	return "", false
}

// IsTerminal reports whether a video status permits no further transition.
func (s VideoStatus) IsTerminal() bool {
	switch s {
	case VideoCompleted, VideoFailed, VideoTimeout:
		return true
	default:
		return false
	}
}

// AspectRatio is the render output orientation.
type AspectRatio string

const (
	AspectPortrait  AspectRatio = "portrait"
	AspectLandscape AspectRatio = "landscape"
	AspectSquare    AspectRatio = "square"
)

// ParseAspectRatio converts a string into a known AspectRatio.
func ParseAspectRatio(value string) (AspectRatio, bool) {
	normalized := AspectRatio(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case AspectPortrait, AspectLandscape, AspectSquare:
		return normalized, true
	}
	return "", false
}

// VideoGeneration is one request to render a script into a video.
type VideoGeneration struct {
	ID              string
	ResearchJobID   string
	ScriptTitle     string
	ScriptContent   string
	AvatarProfileID string
	AspectRatio     AspectRatio
	ProviderJobID   string
	Status          VideoStatus
	AssetURL        string
	ErrorReason     string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// Frequency controls how often a campaign fires.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// ParseFrequency converts a string into a known Frequency.
func ParseFrequency(value string) (Frequency, bool) {
	normalized := Frequency(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return normalized, true
	}
	return "", false
}

// Period returns the wall-clock duration of one campaign cycle.
func (f Frequency) Period() time.Duration {
	switch f {
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyBiweekly:
		return 14 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Campaign is a recurring policy binding a research configuration to
// automatic video creation.
type Campaign struct {
	ID              string
	UserID          string
	Source          Source
	Query           string
	AnalysisDepth   string
	AvatarProfileID string
	AspectRatio     AspectRatio
	Frequency       Frequency
	MaxItemsPerRun  int
	AutoPostEnabled bool
	PostPlatforms   []string
	Active          bool
	LastRunAt       *time.Time
	NextRunAt       time.Time
	TotalGenerated  int
	CreatedAt       time.Time
}

// PublishStatus is the aggregate outcome of a multi-platform post.
type PublishStatus string

const (
	PublishSuccess PublishStatus = "success"
	PublishPartial PublishStatus = "partial"
	PublishError   PublishStatus = "error"
)

// PlatformResult is the per-platform detail of one publish attempt.
type PlatformResult struct {
	Platform       string `json:"platform"`
	Status         string `json:"status"`
	PlatformPostID string `json:"platform_post_id,omitempty"`
	PostURL        string `json:"post_url,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// PublishResult is the outcome of one content-post attempt across platforms.
type PublishResult struct {
	ID              string
	OverallStatus   PublishStatus
	PostContent     string
	PlatformResults []PlatformResult
	CreatedAt       time.Time
	ScheduledFor    *time.Time
}

// HealthSummary aggregates entity counts for diagnostic output.
type HealthSummary struct {
	ResearchRaw      int
	ResearchAnalyzed int
	ResearchFailed   int
	VideosActive     int
	VideosCompleted  int
	VideosFailed     int
	CampaignsActive  int
}
