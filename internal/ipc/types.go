package ipc

import (
	"time"

	"reelflow/internal/store"
)

const timeFormat = time.RFC3339

// ResearchJob is the wire representation of a research job.
type ResearchJob struct {
	ID            string `json:"id"`
	Source        string `json:"source"`
	Query         string `json:"query"`
	Phase         string `json:"phase"`
	AnalysisDepth string `json:"analysis_depth"`
	HasRawData    bool   `json:"has_raw_data"`
	HasAnalysis   bool   `json:"has_analysis"`
	ErrorMessage  string `json:"error_message,omitempty"`
	CreatedAt     string `json:"created_at"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// FromResearchJob converts a store job into its wire form. Payload blobs are
// summarized as presence flags; callers wanting the analysis fetch it
// through the video path.
func FromResearchJob(job *store.ResearchJob) ResearchJob {
	dto := ResearchJob{
		ID:            job.ID,
		Source:        string(job.Source),
		Query:         job.Query,
		Phase:         string(job.Phase),
		AnalysisDepth: job.AnalysisDepth,
		HasRawData:    job.RawData != "",
		HasAnalysis:   job.AnalyzedData != "",
		ErrorMessage:  job.ErrorMessage,
		CreatedAt:     job.CreatedAt.Format(timeFormat),
	}
	if job.CompletedAt != nil {
		dto.CompletedAt = job.CompletedAt.Format(timeFormat)
	}
	return dto
}

// Video is the wire representation of a video generation.
type Video struct {
	ID              string `json:"id"`
	ResearchJobID   string `json:"research_job_id,omitempty"`
	ScriptTitle     string `json:"script_title"`
	AvatarProfileID string `json:"avatar_profile_id"`
	AspectRatio     string `json:"aspect_ratio"`
	ProviderJobID   string `json:"provider_job_id,omitempty"`
	Status          string `json:"status"`
	AssetURL        string `json:"asset_url,omitempty"`
	ErrorReason     string `json:"error_reason,omitempty"`
	CreatedAt       string `json:"created_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

// FromVideo converts a store video generation into its wire form.
func FromVideo(video *store.VideoGeneration) Video {
	dto := Video{
		ID:              video.ID,
		ResearchJobID:   video.ResearchJobID,
		ScriptTitle:     video.ScriptTitle,
		AvatarProfileID: video.AvatarProfileID,
		AspectRatio:     string(video.AspectRatio),
		ProviderJobID:   video.ProviderJobID,
		Status:          string(video.Status),
		AssetURL:        video.AssetURL,
		ErrorReason:     video.ErrorReason,
		CreatedAt:       video.CreatedAt.Format(timeFormat),
	}
	if video.CompletedAt != nil {
		dto.CompletedAt = video.CompletedAt.Format(timeFormat)
	}
	return dto
}

// Campaign is the wire representation of a campaign.
type Campaign struct {
	ID              string   `json:"id"`
	Source          string   `json:"source"`
	Query           string   `json:"query"`
	AnalysisDepth   string   `json:"analysis_depth,omitempty"`
	AvatarProfileID string   `json:"avatar_profile_id"`
	AspectRatio     string   `json:"aspect_ratio"`
	Frequency       string   `json:"frequency"`
	MaxItemsPerRun  int      `json:"max_items_per_run"`
	AutoPostEnabled bool     `json:"auto_post_enabled"`
	PostPlatforms   []string `json:"post_platforms,omitempty"`
	Active          bool     `json:"active"`
	LastRunAt       string   `json:"last_run_at,omitempty"`
	NextRunAt       string   `json:"next_run_at"`
	TotalGenerated  int      `json:"total_generated"`
	CreatedAt       string   `json:"created_at"`
}

// FromCampaign converts a store campaign into its wire form.
func FromCampaign(campaign *store.Campaign) Campaign {
	dto := Campaign{
		ID:              campaign.ID,
		Source:          string(campaign.Source),
		Query:           campaign.Query,
		AnalysisDepth:   campaign.AnalysisDepth,
		AvatarProfileID: campaign.AvatarProfileID,
		AspectRatio:     string(campaign.AspectRatio),
		Frequency:       string(campaign.Frequency),
		MaxItemsPerRun:  campaign.MaxItemsPerRun,
		AutoPostEnabled: campaign.AutoPostEnabled,
		PostPlatforms:   campaign.PostPlatforms,
		Active:          campaign.Active,
		NextRunAt:       campaign.NextRunAt.Format(timeFormat),
		TotalGenerated:  campaign.TotalGenerated,
		CreatedAt:       campaign.CreatedAt.Format(timeFormat),
	}
	if campaign.LastRunAt != nil {
		dto.LastRunAt = campaign.LastRunAt.Format(timeFormat)
	}
	return dto
}

// PlatformResult is the wire form of one platform's publish outcome.
type PlatformResult struct {
	Platform     string `json:"platform"`
	Status       string `json:"status"`
	PostID       string `json:"post_id,omitempty"`
	PostURL      string `json:"post_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// PublishResult is the wire form of an aggregated publish outcome.
type PublishResult struct {
	ID            string           `json:"id"`
	OverallStatus string           `json:"overall_status"`
	Platforms     []PlatformResult `json:"platforms"`
	CreatedAt     string           `json:"created_at"`
}

// FromPublishResult converts a store publish result into its wire form.
func FromPublishResult(result *store.PublishResult) PublishResult {
	dto := PublishResult{
		ID:            result.ID,
		OverallStatus: string(result.OverallStatus),
		CreatedAt:     result.CreatedAt.Format(timeFormat),
	}
	for _, platform := range result.PlatformResults {
		dto.Platforms = append(dto.Platforms, PlatformResult{
			Platform:     platform.Platform,
			Status:       platform.Status,
			PostID:       platform.PlatformPostID,
			PostURL:      platform.PostURL,
			ErrorMessage: platform.ErrorMessage,
		})
	}
	return dto
}

// StartRequest triggers daemon pipeline startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon runtime and entity counts.
type StatusResponse struct {
	Running          bool     `json:"running"`
	PID              int      `json:"pid"`
	DBPath           string   `json:"db_path"`
	LockPath         string   `json:"lock_path"`
	WebhookAddr      string   `json:"webhook_addr,omitempty"`
	ActiveResearch   []string `json:"active_research,omitempty"`
	ResearchRaw      int      `json:"research_raw"`
	ResearchAnalyzed int      `json:"research_analyzed"`
	ResearchFailed   int      `json:"research_failed"`
	VideosActive     int      `json:"videos_active"`
	VideosCompleted  int      `json:"videos_completed"`
	VideosFailed     int      `json:"videos_failed"`
	CampaignsActive  int      `json:"campaigns_active"`
	HealthError      string   `json:"health_error,omitempty"`
}

// ResearchStartRequest launches a research job.
type ResearchStartRequest struct {
	Source   string `json:"source"`
	Query    string `json:"query"`
	Depth    string `json:"depth,omitempty"`
	MaxItems int    `json:"max_items,omitempty"`
}

// ResearchStartResponse carries the new (or deduplicated) job id.
type ResearchStartResponse struct {
	JobID string `json:"job_id"`
}

// ResearchShowRequest fetches a single research job.
type ResearchShowRequest struct {
	ID string `json:"id"`
}

// ResearchShowResponse contains one research job.
type ResearchShowResponse struct {
	Job ResearchJob `json:"job"`
}

// ResearchListRequest filters research listing by phase.
type ResearchListRequest struct {
	Phases []string `json:"phases,omitempty"`
}

// ResearchListResponse contains research jobs.
type ResearchListResponse struct {
	Jobs []ResearchJob `json:"jobs"`
}

// VideoCreateRequest submits a hand-written script for rendering.
type VideoCreateRequest struct {
	Title         string `json:"title"`
	Body          string `json:"body"`
	AvatarProfile string `json:"avatar_profile,omitempty"`
	AspectRatio   string `json:"aspect_ratio,omitempty"`
}

// VideoCreateResponse carries the new video id.
type VideoCreateResponse struct {
	VideoID string `json:"video_id"`
}

// VideoFromResearchRequest renders a video from an analyzed research job.
type VideoFromResearchRequest struct {
	ResearchJobID string `json:"research_job_id"`
	AvatarProfile string `json:"avatar_profile,omitempty"`
	AspectRatio   string `json:"aspect_ratio,omitempty"`
}

// VideoShowRequest fetches a single video generation.
type VideoShowRequest struct {
	ID string `json:"id"`
}

// VideoShowResponse contains one video generation.
type VideoShowResponse struct {
	Video Video `json:"video"`
}

// VideoListRequest filters video listing by status.
type VideoListRequest struct {
	Statuses []string `json:"statuses,omitempty"`
}

// VideoListResponse contains video generations.
type VideoListResponse struct {
	Videos []Video `json:"videos"`
}

// CampaignCreateRequest registers a recurring campaign.
type CampaignCreateRequest struct {
	Source          string   `json:"source"`
	Query           string   `json:"query"`
	AnalysisDepth   string   `json:"analysis_depth,omitempty"`
	AvatarProfile   string   `json:"avatar_profile,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	Frequency       string   `json:"frequency"`
	MaxItemsPerRun  int      `json:"max_items_per_run,omitempty"`
	AutoPostEnabled bool     `json:"auto_post_enabled,omitempty"`
	PostPlatforms   []string `json:"post_platforms,omitempty"`
}

// CampaignCreateResponse contains the created campaign.
type CampaignCreateResponse struct {
	Campaign Campaign `json:"campaign"`
}

// CampaignListRequest fetches all campaigns.
type CampaignListRequest struct{}

// CampaignListResponse contains campaigns.
type CampaignListResponse struct {
	Campaigns []Campaign `json:"campaigns"`
}

// CampaignSetActiveRequest pauses or resumes a campaign.
type CampaignSetActiveRequest struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

// CampaignSetActiveResponse acknowledges the change.
type CampaignSetActiveResponse struct {
	Active bool `json:"active"`
}

// CampaignDeleteRequest removes a campaign.
type CampaignDeleteRequest struct {
	ID string `json:"id"`
}

// CampaignDeleteResponse acknowledges removal.
type CampaignDeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// CampaignRunNowRequest triggers one scheduler sweep immediately.
type CampaignRunNowRequest struct{}

// CampaignRunNowResponse acknowledges the sweep.
type CampaignRunNowResponse struct {
	Ran bool `json:"ran"`
}

// PublishRequest posts content to platforms.
type PublishRequest struct {
	Content   string   `json:"content"`
	Platforms []string `json:"platforms,omitempty"`
}

// PublishResponse contains the aggregated outcome.
type PublishResponse struct {
	Result PublishResult `json:"result"`
}

// PublishListRequest fetches recent publish outcomes.
type PublishListRequest struct {
	Limit int `json:"limit,omitempty"`
}

// PublishListResponse contains publish outcomes, newest first.
type PublishListResponse struct {
	Results []PublishResult `json:"results"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
