package database

import (
	"context"
	"fmt"
)

// Timestamps are stored as unix milliseconds so range filters and day
// bucketing behave the same on Postgres and SQLite.
var analyticsSchema = []string{
	`CREATE TABLE IF NOT EXISTS reading_sessions (
		id           TEXT PRIMARY KEY,
		user_id      TEXT,
		post_id      TEXT NOT NULL,
		session_id   TEXT NOT NULL,
		started_at   BIGINT NOT NULL,
		ended_at     BIGINT,
		time_spent   INTEGER NOT NULL DEFAULT 0 CHECK (time_spent >= 0),
		scroll_depth INTEGER NOT NULL DEFAULT 0 CHECK (scroll_depth BETWEEN 0 AND 100),
		is_bot       BOOLEAN NOT NULL DEFAULT FALSE,
		user_agent   TEXT NOT NULL,
		referrer     TEXT,
		ip_hash      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reading_sessions_session ON reading_sessions (session_id, user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reading_sessions_user ON reading_sessions (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reading_sessions_started ON reading_sessions (started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_reading_sessions_post ON reading_sessions (post_id)`,
	`CREATE TABLE IF NOT EXISTS analytics_events (
		id         TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		path       TEXT NOT NULL,
		user_id    TEXT,
		session_id TEXT NOT NULL,
		is_bot     BOOLEAN NOT NULL DEFAULT FALSE,
		user_agent TEXT NOT NULL,
		referrer   TEXT,
		ip_hash    TEXT NOT NULL,
		metadata   TEXT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_events_created ON analytics_events (created_at)`,
}

// contentStubSchema is the slice of the content store's posts table the
// dashboards join against. The blog application owns the real table; this is
// only for standalone deployments and tests.
var contentStubSchema = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		id    TEXT PRIMARY KEY,
		slug  TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL
	)`,
}

const clickHouseEventsSchema = `
	CREATE TABLE IF NOT EXISTS analytics_events (
		event_id   String,
		event_type LowCardinality(String),
		path       String,
		user_id    Nullable(String),
		session_id String,
		is_bot     Bool,
		user_agent String,
		referrer   Nullable(String),
		ip_hash    String,
		metadata   String,
		created_at DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	ORDER BY (event_type, created_at)`

// Migrate creates the analytics tables. withContentStub also creates a
// minimal posts table.
func (db *DB) Migrate(ctx context.Context, withContentStub bool) error {
	statements := analyticsSchema
	if withContentStub {
		statements = append(append([]string{}, contentStubSchema...), analyticsSchema...)
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (c *ClickHouseClient) Migrate(ctx context.Context) error {
	if err := c.Conn.Exec(ctx, clickHouseEventsSchema); err != nil {
		return fmt.Errorf("failed to create ClickHouse analytics_events: %w", err)
	}
	return nil
}
