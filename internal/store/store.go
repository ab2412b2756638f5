package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"reelflow/internal/config"
)

// DBFileName is the SQLite database file created inside the data directory.
const DBFileName = "reelflow.db"

// Store manages pipeline persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the pipeline database and applies the
// schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, DBFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) applySchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Health aggregates entity counts for status output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	var health HealthSummary

	rows, err := s.db.QueryContext(ctx, `SELECT phase, COUNT(1) FROM research_jobs GROUP BY phase`)
	if err != nil {
		return health, fmt.Errorf("research stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var phase Phase
		var count int
		if err := rows.Scan(&phase, &count); err != nil {
			return health, err
		}
		switch phase {
		case PhaseRaw:
			health.ResearchRaw = count
		case PhaseAnalyzed:
			health.ResearchAnalyzed = count
		case PhaseFailed:
			health.ResearchFailed = count
		}
	}
	if err := rows.Err(); err != nil {
		return health, err
	}

	videoRows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM video_generations GROUP BY status`)
	if err != nil {
		return health, fmt.Errorf("video stats: %w", err)
	}
	defer videoRows.Close()
	for videoRows.Next() {
		var status VideoStatus
		var count int
		if err := videoRows.Scan(&status, &count); err != nil {
			return health, err
		}
		switch status {
		case VideoQueued, VideoProcessing:
			health.VideosActive += count
		case VideoCompleted:
			health.VideosCompleted = count
		case VideoFailed, VideoTimeout:
			health.VideosFailed += count
		}
	}
	if err := videoRows.Err(); err != nil {
		return health, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM campaigns WHERE active = 1`)
	if err := row.Scan(&health.CampaignsActive); err != nil {
		return health, fmt.Errorf("campaign stats: %w", err)
	}
	return health, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
