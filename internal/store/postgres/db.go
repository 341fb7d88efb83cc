package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the chat schema on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			id                    TEXT PRIMARY KEY,
			type                  TEXT NOT NULL,
			name                  TEXT,
			created_by            TEXT NOT NULL,
			allow_real_names      BOOLEAN NOT NULL DEFAULT TRUE,
			show_anonymous_names  BOOLEAN NOT NULL DEFAULT TRUE,
			fallback_to_anonymous BOOLEAN NOT NULL DEFAULT TRUE,
			last_message_at       TIMESTAMPTZ,
			last_message_preview  TEXT,
			created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS room_participants (
			room_id      TEXT NOT NULL REFERENCES rooms(id),
			user_id      TEXT NOT NULL,
			joined_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_read_at TIMESTAMPTZ,
			PRIMARY KEY (room_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_room_participants_user ON room_participants(user_id)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id                TEXT PRIMARY KEY,
			room_id           TEXT NOT NULL REFERENCES rooms(id),
			sender_id         TEXT NOT NULL,
			content           TEXT NOT NULL,
			is_anonymous      BOOLEAN NOT NULL DEFAULT FALSE,
			reply_to_id       TEXT,
			attachments       TEXT,
			moderation        TEXT NOT NULL DEFAULT 'active',
			moderated_by      TEXT,
			moderation_reason TEXT,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room_sender_created ON messages(room_id, sender_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS call_sessions (
			id               TEXT PRIMARY KEY,
			media_session_id TEXT NOT NULL,
			chat_room_id     TEXT NOT NULL REFERENCES rooms(id),
			initiated_by     TEXT NOT NULL,
			call_type        TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'scheduled',
			version          BIGINT NOT NULL DEFAULT 0,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			started_at       TIMESTAMPTZ,
			ended_at         TIMESTAMPTZ,
			ended_by         TEXT,
			end_reason       TEXT,
			duration_seconds BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_sessions_status_created ON call_sessions(status, created_at)`,

		`CREATE TABLE IF NOT EXISTS call_participants (
			session_id  TEXT NOT NULL REFERENCES call_sessions(id),
			user_id     TEXT NOT NULL,
			joined_at   TIMESTAMPTZ,
			left_at     TIMESTAMPTZ,
			is_muted    BOOLEAN NOT NULL DEFAULT FALSE,
			is_video_on BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (session_id, user_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
