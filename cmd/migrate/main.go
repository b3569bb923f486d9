package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// schema is applied idempotently: every statement is IF NOT EXISTS, so the
// tool is safe to run on every deploy.
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id            TEXT PRIMARY KEY,
    caller_id     TEXT NOT NULL DEFAULT '',
    kind          TEXT NOT NULL DEFAULT '',
    provider      TEXT NOT NULL DEFAULT '',
    version       TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'queued',
    params        JSONB,
    outputs       JSONB,
    duration      DOUBLE PRECISION,
    error_kind    TEXT,
    error_message TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_jobs_caller ON jobs (caller_id);
CREATE INDEX IF NOT EXISTS idx_jobs_stale ON jobs (updated_at)
    WHERE status NOT IN ('succeeded', 'failed', 'canceled');

CREATE TABLE IF NOT EXISTS projects (
    id             TEXT PRIMARY KEY,
    caller_id      TEXT NOT NULL DEFAULT '',
    brief          TEXT NOT NULL DEFAULT '',
    iteration      INTEGER NOT NULL DEFAULT 1,
    max_iterations INTEGER NOT NULL DEFAULT 3,
    status         TEXT NOT NULL DEFAULT 'blueprint_pending',
    last_score     DOUBLE PRECISION,
    notes          JSONB,
    artifact_key   TEXT NOT NULL DEFAULT '',
    fallback_used  BOOLEAN NOT NULL DEFAULT FALSE,
    events         JSONB,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_projects_caller ON projects (caller_id);

CREATE TABLE IF NOT EXISTS api_keys (
    key_hash   TEXT PRIMARY KEY,
    caller_id  TEXT NOT NULL,
    tier       TEXT NOT NULL DEFAULT 'free',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    revoked_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_api_keys_caller ON api_keys (caller_id);

CREATE TABLE IF NOT EXISTS integration_tokens (
    provider   TEXT PRIMARY KEY,
    token      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func main() {
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	db.SetConnMaxLifetime(time.Minute)
	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "ping database: %v\n", err)
		os.Exit(1)
	}

	if _, err := db.Exec(schema); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("schema applied")
}
