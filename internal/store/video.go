package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const videoColumns = "id, research_job_id, script_title, script_content, avatar_profile_id, aspect_ratio, provider_job_id, status, asset_url, error_reason, created_at, completed_at"

// NewVideoGeneration inserts a generation in status queued.
func (s *Store) NewVideoGeneration(ctx context.Context, researchJobID, scriptTitle, scriptContent, avatarProfileID string, aspect AspectRatio) (*VideoGeneration, error) {
	if scriptContent == "" {
		return nil, errors.New("script content is required")
	}
	if avatarProfileID == "" {
		return nil, errors.New("avatar profile is required")
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO video_generations (
            id, research_job_id, script_title, script_content, avatar_profile_id, aspect_ratio, status, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		nullableString(researchJobID),
		scriptTitle,
		scriptContent,
		avatarProfileID,
		aspect,
		VideoQueued,
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert video generation: %w", err)
	}
	return s.GetVideoGeneration(ctx, id)
}

// GetVideoGeneration fetches a video generation by identifier.
func (s *Store) GetVideoGeneration(ctx context.Context, id string) (*VideoGeneration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM video_generations WHERE id = ?`, id)
	video, err := scanVideoGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video generation: %w", err)
	}
	return video, nil
}

// FindVideoByProviderJobID resolves a provider callback to a local record.
// Returns nil when no record carries the provider identifier.
func (s *Store) FindVideoByProviderJobID(ctx context.Context, providerJobID string) (*VideoGeneration, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+videoColumns+` FROM video_generations WHERE provider_job_id = ?`,
		providerJobID,
	)
	video, err := scanVideoGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find video by provider job: %w", err)
	}
	return video, nil
}

// MarkVideoProcessing records the provider job identifier and moves the
// generation from queued to processing. The provider identifier is written
// exactly once; a second assignment attempt reports a state conflict.
func (s *Store) MarkVideoProcessing(ctx context.Context, id, providerJobID string) error {
	if providerJobID == "" {
		return errors.New("provider job id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE video_generations
         SET status = ?, provider_job_id = ?
         WHERE id = ? AND status = ? AND provider_job_id IS NULL`,
		VideoProcessing,
		providerJobID,
		id,
		VideoQueued,
	)
	if err != nil {
		return fmt.Errorf("mark video processing: %w", err)
	}
	return requireTransition(res, "video generation", id)
}

// FinishVideo writes a terminal status. The write is conditional on the
// current status being non-terminal, so a poller and a webhook racing to
// finish the same generation yield exactly one winner. The loser receives a
// state conflict and must treat the stored outcome as authoritative.
func (s *Store) FinishVideo(ctx context.Context, id string, status VideoStatus, assetURL, errorReason string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE video_generations
         SET status = ?, asset_url = ?, error_reason = ?, completed_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		status,
		nullableString(assetURL),
		nullableString(errorReason),
		formatTime(time.Now().UTC()),
		id,
		VideoQueued,
		VideoProcessing,
	)
	if err != nil {
		return fmt.Errorf("finish video: %w", err)
	}
	return requireTransition(res, "video generation", id)
}

// ListVideoGenerations returns generations filtered by status set (or all
// generations when no status is provided), newest first.
func (s *Store) ListVideoGenerations(ctx context.Context, statuses ...VideoStatus) ([]*VideoGeneration, error) {
	baseQuery := `SELECT ` + videoColumns + ` FROM video_generations`
	orderClause := ` ORDER BY created_at DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list video generations: %w", err)
	}
	defer rows.Close()
	return collectVideoGenerations(rows)
}

// ActiveVideoGenerations returns queued and processing generations, oldest
// first. Startup reconciliation resumes polls for them.
func (s *Store) ActiveVideoGenerations(ctx context.Context) ([]*VideoGeneration, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+videoColumns+` FROM video_generations WHERE status IN (?, ?) ORDER BY created_at`,
		VideoQueued,
		VideoProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("active video generations: %w", err)
	}
	defer rows.Close()
	return collectVideoGenerations(rows)
}

func collectVideoGenerations(rows *sql.Rows) ([]*VideoGeneration, error) {
	var videos []*VideoGeneration
	for rows.Next() {
		video, err := scanVideoGeneration(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

func scanVideoGeneration(scanner interface{ Scan(dest ...any) error }) (*VideoGeneration, error) {
	var (
		id            string
		researchJobID sql.NullString
		scriptTitle   string
		scriptContent string
		avatarProfile string
		aspect        string
		providerJobID sql.NullString
		status        string
		assetURL      sql.NullString
		errorReason   sql.NullString
		createdRaw    string
		completedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&researchJobID,
		&scriptTitle,
		&scriptContent,
		&avatarProfile,
		&aspect,
		&providerJobID,
		&status,
		&assetURL,
		&errorReason,
		&createdRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	video := &VideoGeneration{
		ID:              id,
		ResearchJobID:   researchJobID.String,
		ScriptTitle:     scriptTitle,
		ScriptContent:   scriptContent,
		AvatarProfileID: avatarProfile,
		AspectRatio:     AspectRatio(aspect),
		ProviderJobID:   providerJobID.String,
		Status:          VideoStatus(status),
		AssetURL:        assetURL.String,
		ErrorReason:     errorReason.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		video.CreatedAt = created
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			video.CompletedAt = &completed
		}
	}
	return video, nil
}
