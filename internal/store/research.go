package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reelflow/internal/services"
)

const researchColumns = "id, source, query, phase, analysis_depth, raw_data, analyzed_data, error_message, workspace_id, user_id, created_at, updated_at"

// NewResearchJob inserts a job in phase raw.
func (s *Store) NewResearchJob(ctx context.Context, source Source, query, analysisDepth, workspaceID, userID string) (*ResearchJob, error) {
	if query == "" {
		return nil, errors.New("query is required")
	}
	now := time.Now().UTC()
	id := uuid.NewString()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO research_jobs (
            id, source, query, phase, analysis_depth, workspace_id, user_id, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		source,
		query,
		PhaseRaw,
		nullableString(analysisDepth),
		nullableString(workspaceID),
		nullableString(userID),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert research job: %w", err)
	}
	return s.GetResearchJob(ctx, id)
}

// GetResearchJob fetches a research job by identifier.
func (s *Store) GetResearchJob(ctx context.Context, id string) (*ResearchJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+researchColumns+` FROM research_jobs WHERE id = ?`, id)
	job, err := scanResearchJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get research job: %w", err)
	}
	return job, nil
}

// SetResearchRawData persists the collected dataset while the job is still
// in phase raw.
func (s *Store) SetResearchRawData(ctx context.Context, id, rawJSON string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE research_jobs SET raw_data = ?, updated_at = ? WHERE id = ? AND phase = ?`,
		rawJSON,
		formatTime(time.Now().UTC()),
		id,
		PhaseRaw,
	)
	if err != nil {
		return fmt.Errorf("set raw data: %w", err)
	}
	return requireRow(res, "research job", id)
}

// MarkResearchAnalyzed transitions a raw job to analyzed with its analysis
// payload. Terminal jobs are immutable; a second transition reports a state
// conflict.
func (s *Store) MarkResearchAnalyzed(ctx context.Context, id, analyzedJSON string) error {
	if analyzedJSON == "" {
		return errors.New("analyzed data is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE research_jobs
         SET phase = ?, analyzed_data = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND phase = ?`,
		PhaseAnalyzed,
		analyzedJSON,
		formatTime(time.Now().UTC()),
		id,
		PhaseRaw,
	)
	if err != nil {
		return fmt.Errorf("mark analyzed: %w", err)
	}
	return requireTransition(res, "research job", id)
}

// MarkResearchFailed transitions a raw job to failed with a human-readable
// reason.
func (s *Store) MarkResearchFailed(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = "research job failed"
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE research_jobs
         SET phase = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND phase = ?`,
		PhaseFailed,
		reason,
		formatTime(time.Now().UTC()),
		id,
		PhaseRaw,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireTransition(res, "research job", id)
}

// FindActiveResearchJob returns the newest raw-phase job for a source/query
// pair, if any. Duplicate-start suppression uses it to catch jobs left over
// from a previous daemon run that the in-memory registry cannot see.
func (s *Store) FindActiveResearchJob(ctx context.Context, source Source, query string) (*ResearchJob, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+researchColumns+` FROM research_jobs
         WHERE source = ? AND query = ? AND phase = ?
         ORDER BY created_at DESC LIMIT 1`,
		source,
		query,
		PhaseRaw,
	)
	job, err := scanResearchJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active research job: %w", err)
	}
	return job, nil
}

// ListResearchJobs returns jobs filtered by phase set (or all jobs when no
// phase is provided), newest first.
func (s *Store) ListResearchJobs(ctx context.Context, phases ...Phase) ([]*ResearchJob, error) {
	baseQuery := `SELECT ` + researchColumns + ` FROM research_jobs`
	orderClause := ` ORDER BY created_at DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if len(phases) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(phases))
		args := make([]any, len(phases))
		for i, phase := range phases {
			args[i] = phase
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE phase IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list research jobs: %w", err)
	}
	defer rows.Close()
	return collectResearchJobs(rows)
}

// AnalyzedResearchSince returns analyzed jobs for a source/query pair created
// after the cutoff, oldest first so ranking is reproducible.
func (s *Store) AnalyzedResearchSince(ctx context.Context, source Source, query string, cutoff time.Time) ([]*ResearchJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+researchColumns+` FROM research_jobs
         WHERE source = ? AND query = ? AND phase = ? AND created_at > ?
         ORDER BY created_at, id`,
		source,
		query,
		PhaseAnalyzed,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("analyzed research since: %w", err)
	}
	defer rows.Close()
	return collectResearchJobs(rows)
}

// RawResearchJobs returns all jobs still in phase raw, oldest first. The
// reconciliation sweep resumes or fails them at daemon startup.
func (s *Store) RawResearchJobs(ctx context.Context) ([]*ResearchJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+researchColumns+` FROM research_jobs WHERE phase = ? ORDER BY created_at`,
		PhaseRaw,
	)
	if err != nil {
		return nil, fmt.Errorf("raw research jobs: %w", err)
	}
	defer rows.Close()
	return collectResearchJobs(rows)
}

func collectResearchJobs(rows *sql.Rows) ([]*ResearchJob, error) {
	var jobs []*ResearchJob
	for rows.Next() {
		job, err := scanResearchJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanResearchJob(scanner interface{ Scan(dest ...any) error }) (*ResearchJob, error) {
	var (
		id           string
		source       string
		query        string
		phase        string
		depth        sql.NullString
		rawData      sql.NullString
		analyzedData sql.NullString
		errorMessage sql.NullString
		workspaceID  sql.NullString
		userID       sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&id,
		&source,
		&query,
		&phase,
		&depth,
		&rawData,
		&analyzedData,
		&errorMessage,
		&workspaceID,
		&userID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &ResearchJob{
		ID:            id,
		Source:        Source(source),
		Query:         query,
		Phase:         Phase(phase),
		AnalysisDepth: depth.String,
		RawData:       rawData.String,
		AnalyzedData:  analyzedData.String,
		ErrorMessage:  errorMessage.String,
		WorkspaceID:   workspaceID.String,
		UserID:        userID.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func requireRow(res sql.Result, entity, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", "update", entity+" "+id+" not found or not mutable", nil)
	}
	return nil
}

func requireTransition(res sql.Result, entity, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrStateConflict, "store", "transition", entity+" "+id+" is already terminal", nil)
	}
	return nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
