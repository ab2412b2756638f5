package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const publishColumns = "id, overall_status, post_content, platform_results, created_at, scheduled_for"

// SavePublishResult persists the aggregate outcome of one post attempt.
func (s *Store) SavePublishResult(ctx context.Context, status PublishStatus, postContent string, results []PlatformResult, scheduledFor *time.Time) (*PublishResult, error) {
	payload, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("marshal platform results: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO publish_results (
            id, overall_status, post_content, platform_results, created_at, scheduled_for
        ) VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		status,
		postContent,
		string(payload),
		formatTime(time.Now().UTC()),
		nullableTime(scheduledFor),
	)
	if err != nil {
		return nil, fmt.Errorf("insert publish result: %w", err)
	}
	return s.GetPublishResult(ctx, id)
}

// GetPublishResult fetches a publish result by identifier.
func (s *Store) GetPublishResult(ctx context.Context, id string) (*PublishResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+publishColumns+` FROM publish_results WHERE id = ?`, id)
	result, err := scanPublishResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get publish result: %w", err)
	}
	return result, nil
}

// ListPublishResults returns results newest first, capped at limit when
// limit is positive.
func (s *Store) ListPublishResults(ctx context.Context, limit int) ([]*PublishResult, error) {
	query := `SELECT ` + publishColumns + ` FROM publish_results ORDER BY created_at DESC`
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list publish results: %w", err)
	}
	defer rows.Close()

	var results []*PublishResult
	for rows.Next() {
		result, err := scanPublishResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func scanPublishResult(scanner interface{ Scan(dest ...any) error }) (*PublishResult, error) {
	var (
		id           string
		status       string
		postContent  string
		resultsJSON  string
		createdRaw   string
		scheduledRaw sql.NullString
	)
	if err := scanner.Scan(&id, &status, &postContent, &resultsJSON, &createdRaw, &scheduledRaw); err != nil {
		return nil, err
	}

	result := &PublishResult{
		ID:            id,
		OverallStatus: PublishStatus(status),
		PostContent:   postContent,
	}
	if err := json.Unmarshal([]byte(resultsJSON), &result.PlatformResults); err != nil {
		return nil, fmt.Errorf("decode platform results: %w", err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		result.CreatedAt = created
	}
	if scheduledRaw.Valid {
		if scheduled, err := parseTimeString(scheduledRaw.String); err == nil {
			result.ScheduledFor = &scheduled
		}
	}
	return result, nil
}
