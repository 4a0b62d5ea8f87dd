// Package postgres implements the storage ports on PostgreSQL through sqlx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"scheduler_server/core/port/out"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

// The exclusion constraint rejects overlapping ranges outright; the unique
// constraint mirrors the Mongo index so both backends report identical
// slots the same way.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		email      TEXT NOT NULL,
		timezone   TEXT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS calendar_events (
		id                UUID PRIMARY KEY,
		event_id          TEXT UNIQUE,
		user_id           TEXT NOT NULL,
		title             TEXT NOT NULL,
		start_utc         TIMESTAMPTZ NOT NULL,
		end_utc           TIMESTAMPTZ NOT NULL,
		original_timezone TEXT NOT NULL DEFAULT 'UTC',
		status            TEXT NOT NULL,
		html_link         TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT calendar_events_slot_key UNIQUE (start_utc, end_utc),
		CONSTRAINT calendar_events_no_overlap EXCLUDE USING gist (tstzrange(start_utc, end_utc, '[)') WITH &&),
		CONSTRAINT calendar_events_window_check CHECK (end_utc > start_utc)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calendar_events_user_start ON calendar_events (user_id, start_utc)`,
	`CREATE INDEX IF NOT EXISTS idx_calendar_events_pending ON calendar_events (created_at) WHERE status = 'pending'`,
}

// EnsureSchema creates the tables and constraints if they are missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// translateError maps constraint violations on the slot to ErrDuplicateSlot.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgExclusionViolation:
			return out.ErrDuplicateSlot
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
