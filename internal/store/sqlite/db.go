package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) the SQLite database at the given path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the chat schema on SQLite.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			id                    TEXT PRIMARY KEY,
			type                  TEXT NOT NULL,
			name                  TEXT,
			created_by            TEXT NOT NULL,
			allow_real_names      INTEGER NOT NULL DEFAULT 1,
			show_anonymous_names  INTEGER NOT NULL DEFAULT 1,
			fallback_to_anonymous INTEGER NOT NULL DEFAULT 1,
			last_message_at       TIMESTAMP,
			last_message_preview  TEXT,
			created_at            TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at            TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS room_participants (
			room_id      TEXT NOT NULL REFERENCES rooms(id),
			user_id      TEXT NOT NULL,
			joined_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_read_at TIMESTAMP,
			PRIMARY KEY (room_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_room_participants_user ON room_participants(user_id)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id                TEXT PRIMARY KEY,
			room_id           TEXT NOT NULL REFERENCES rooms(id),
			sender_id         TEXT NOT NULL,
			content           TEXT NOT NULL,
			is_anonymous      INTEGER NOT NULL DEFAULT 0,
			reply_to_id       TEXT,
			attachments       TEXT,
			moderation        TEXT NOT NULL DEFAULT 'active',
			moderated_by      TEXT,
			moderation_reason TEXT,
			created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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
			version          INTEGER NOT NULL DEFAULT 0,
			created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			started_at       TIMESTAMP,
			ended_at         TIMESTAMP,
			ended_by         TEXT,
			end_reason       TEXT,
			duration_seconds INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_sessions_status_created ON call_sessions(status, created_at)`,

		`CREATE TABLE IF NOT EXISTS call_participants (
			session_id  TEXT NOT NULL REFERENCES call_sessions(id),
			user_id     TEXT NOT NULL,
			joined_at   TIMESTAMP,
			left_at     TIMESTAMP,
			is_muted    INTEGER NOT NULL DEFAULT 0,
			is_video_on INTEGER NOT NULL DEFAULT 0,
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
