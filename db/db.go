// Package db provides the optional Postgres audit history: a record of
// completed forwards and a job heartbeat. It is observability only — the
// keyword/dedup state that drives matching lives in memory and is never
// read back from here.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for the given DSN.
func Connect(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for the audit tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS forwards (
			id SERIAL PRIMARY KEY,
			keyword TEXT NOT NULL,
			store_name TEXT NOT NULL,
			image_path TEXT,
			message_id BIGINT,
			sent_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forwards_keyword ON forwards(keyword)`,
		`CREATE INDEX IF NOT EXISTS idx_forwards_sent_at ON forwards(sent_at)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// History is the audit writer handed to the monitor. A nil *History is a
// valid no-op receiver so the monitor runs unchanged without a database.
type History struct {
	DB *sql.DB
}

// RecordForward stores one completed forward.
func (h *History) RecordForward(ctx context.Context, keyword, storeName, imagePath string, messageID int64) error {
	if h == nil || h.DB == nil {
		return nil
	}
	_, err := h.DB.ExecContext(ctx,
		`INSERT INTO forwards (keyword, store_name, image_path, message_id, sent_at) VALUES ($1,$2,$3,$4,NOW())`,
		keyword, storeName, imagePath, messageID)
	return err
}

// Heartbeat upserts a timestamped kv row so operators can see the last
// completed cycle even across restarts.
func (h *History) Heartbeat(ctx context.Context, key string) error {
	if h == nil || h.DB == nil {
		return nil
	}
	_, err := h.DB.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES ($1,$2,NOW())
		 ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
		key, time.Now().UTC().Format(time.RFC3339))
	return err
}
