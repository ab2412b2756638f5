package store

// Schema statements are executed in order at open. Columns use TEXT
// timestamps (RFC 3339) to match the scan helpers in store.go.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS research_jobs (
        id TEXT PRIMARY KEY,
        source TEXT NOT NULL,
        query TEXT NOT NULL,
        phase TEXT NOT NULL,
        analysis_depth TEXT,
        raw_data TEXT,
        analyzed_data TEXT,
        error_message TEXT,
        workspace_id TEXT,
        user_id TEXT,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_research_jobs_phase ON research_jobs(phase, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_research_jobs_key ON research_jobs(source, query)`,
	`CREATE TABLE IF NOT EXISTS video_generations (
        id TEXT PRIMARY KEY,
        research_job_id TEXT,
        script_title TEXT NOT NULL,
        script_content TEXT NOT NULL,
        avatar_profile_id TEXT NOT NULL,
        aspect_ratio TEXT NOT NULL,
        provider_job_id TEXT,
        status TEXT NOT NULL,
        asset_url TEXT,
        error_reason TEXT,
        created_at TEXT NOT NULL,
        completed_at TEXT
    )`,
	`CREATE INDEX IF NOT EXISTS idx_video_generations_provider ON video_generations(provider_job_id)`,
	`CREATE INDEX IF NOT EXISTS idx_video_generations_status ON video_generations(status, created_at)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
        id TEXT PRIMARY KEY,
        user_id TEXT,
        source TEXT NOT NULL,
        query TEXT NOT NULL,
        analysis_depth TEXT,
        avatar_profile_id TEXT NOT NULL,
        aspect_ratio TEXT NOT NULL,
        frequency TEXT NOT NULL,
        max_items_per_run INTEGER NOT NULL,
        auto_post_enabled INTEGER NOT NULL DEFAULT 0,
        post_platforms TEXT,
        active INTEGER NOT NULL DEFAULT 1,
        last_run_at TEXT,
        next_run_at TEXT NOT NULL,
        total_generated INTEGER NOT NULL DEFAULT 0,
        created_at TEXT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_due ON campaigns(active, next_run_at)`,
	`CREATE TABLE IF NOT EXISTS publish_results (
        id TEXT PRIMARY KEY,
        overall_status TEXT NOT NULL,
        post_content TEXT NOT NULL,
        platform_results TEXT NOT NULL,
        created_at TEXT NOT NULL,
        scheduled_for TEXT
    )`,
}
