package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const campaignColumns = "id, user_id, source, query, analysis_depth, avatar_profile_id, aspect_ratio, frequency, max_items_per_run, auto_post_enabled, post_platforms, active, last_run_at, next_run_at, total_generated, created_at"

// CampaignSpec carries the caller-provided fields for a new campaign.
type CampaignSpec struct {
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
}

// NewCampaign inserts an active campaign due immediately.
func (s *Store) NewCampaign(ctx context.Context, spec CampaignSpec) (*Campaign, error) {
	if spec.Query == "" {
		return nil, errors.New("query is required")
	}
	if spec.AvatarProfileID == "" {
		return nil, errors.New("avatar profile is required")
	}
	if spec.MaxItemsPerRun <= 0 {
		spec.MaxItemsPerRun = 1
	}
	now := time.Now().UTC()
	id := uuid.NewString()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO campaigns (
            id, user_id, source, query, analysis_depth, avatar_profile_id, aspect_ratio,
            frequency, max_items_per_run, auto_post_enabled, post_platforms, active,
            next_run_at, total_generated, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, 0, ?)`,
		id,
		nullableString(spec.UserID),
		spec.Source,
		spec.Query,
		nullableString(spec.AnalysisDepth),
		spec.AvatarProfileID,
		spec.AspectRatio,
		spec.Frequency,
		spec.MaxItemsPerRun,
		boolToInt(spec.AutoPostEnabled),
		nullableString(joinPlatforms(spec.PostPlatforms)),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert campaign: %w", err)
	}
	return s.GetCampaign(ctx, id)
}

// GetCampaign fetches a campaign by identifier.
func (s *Store) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	campaign, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return campaign, nil
}

// ListCampaigns returns all campaigns, newest first.
func (s *Store) ListCampaigns(ctx context.Context) ([]*Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

// DueCampaigns returns active campaigns whose next run time has passed,
// oldest due first so long-starved campaigns run first.
func (s *Store) DueCampaigns(ctx context.Context, now time.Time) ([]*Campaign, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+campaignColumns+` FROM campaigns
         WHERE active = 1 AND next_run_at <= ?
         ORDER BY next_run_at, id`,
		formatTime(now.UTC()),
	)
	if err != nil {
		return nil, fmt.Errorf("due campaigns: %w", err)
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

// SetCampaignActive pauses or resumes a campaign.
func (s *Store) SetCampaignActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE campaigns SET active = ? WHERE id = ?`,
		boolToInt(active),
		id,
	)
	if err != nil {
		return fmt.Errorf("set campaign active: %w", err)
	}
	return requireRow(res, "campaign", id)
}

// AdvanceCampaign records a completed run: the last run time, the next due
// time one period ahead, and the number of videos the run produced. The
// schedule always advances, even for a run that generated nothing.
func (s *Store) AdvanceCampaign(ctx context.Context, id string, ranAt time.Time, generated int) error {
	campaign, err := s.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if campaign == nil {
		return fmt.Errorf("campaign %s not found", id)
	}
	ranAt = ranAt.UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE campaigns
         SET last_run_at = ?, next_run_at = ?, total_generated = total_generated + ?
         WHERE id = ?`,
		formatTime(ranAt),
		formatTime(ranAt.Add(campaign.Frequency.Period())),
		generated,
		id,
	)
	if err != nil {
		return fmt.Errorf("advance campaign: %w", err)
	}
	return requireRow(res, "campaign", id)
}

// DeleteCampaign removes a campaign permanently.
func (s *Store) DeleteCampaign(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return requireRow(res, "campaign", id)
}

func collectCampaigns(rows *sql.Rows) ([]*Campaign, error) {
	var campaigns []*Campaign
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, campaign)
	}
	return campaigns, rows.Err()
}

func scanCampaign(scanner interface{ Scan(dest ...any) error }) (*Campaign, error) {
	var (
		id            string
		userID        sql.NullString
		source        string
		query         string
		depth         sql.NullString
		avatarProfile string
		aspect        string
		frequency     string
		maxItems      int
		autoPost      int
		platforms     sql.NullString
		active        int
		lastRunRaw    sql.NullString
		nextRunRaw    string
		generated     int
		createdRaw    string
	)
	if err := scanner.Scan(
		&id,
		&userID,
		&source,
		&query,
		&depth,
		&avatarProfile,
		&aspect,
		&frequency,
		&maxItems,
		&autoPost,
		&platforms,
		&active,
		&lastRunRaw,
		&nextRunRaw,
		&generated,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	campaign := &Campaign{
		ID:              id,
		UserID:          userID.String,
		Source:          Source(source),
		Query:           query,
		AnalysisDepth:   depth.String,
		AvatarProfileID: avatarProfile,
		AspectRatio:     AspectRatio(aspect),
		Frequency:       Frequency(frequency),
		MaxItemsPerRun:  maxItems,
		AutoPostEnabled: autoPost != 0,
		PostPlatforms:   splitPlatforms(platforms.String),
		Active:          active != 0,
		TotalGenerated:  generated,
	}
	if lastRunRaw.Valid {
		if lastRun, err := parseTimeString(lastRunRaw.String); err == nil {
			campaign.LastRunAt = &lastRun
		}
	}
	if nextRun, err := parseTimeString(nextRunRaw); err == nil {
		campaign.NextRunAt = nextRun
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		campaign.CreatedAt = created
	}
	return campaign, nil
}

func joinPlatforms(platforms []string) string {
	cleaned := make([]string, 0, len(platforms))
	for _, platform := range platforms {
		platform = strings.ToLower(strings.TrimSpace(platform))
		if platform != "" {
			cleaned = append(cleaned, platform)
		}
	}
	return strings.Join(cleaned, ",")
}

func splitPlatforms(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	platforms := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			platforms = append(platforms, part)
		}
	}
	return platforms
}
