package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
)

type CallSessionRepo struct {
	db *sql.DB
}

func NewCallSessionRepo(db *sql.DB) *CallSessionRepo {
	return &CallSessionRepo{db: db}
}

var _ domain.CallSessionRepository = (*CallSessionRepo)(nil)

func (r *CallSessionRepo) Create(ctx context.Context, s *domain.CallSession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO call_sessions (id, media_session_id, chat_room_id, initiated_by, call_type, status, version, created_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, 0)
	`, s.ID, s.MediaSessionID, s.ChatRoomID, s.InitiatedBy, s.CallType, s.Status, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, p := range s.Participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO call_participants (session_id, user_id, is_muted, is_video_on)
			VALUES (?, ?, ?, ?)
		`, s.ID, p.UserID, p.IsMuted, p.IsVideoOn); err != nil {
			return fmt.Errorf("insert call participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const sessionColumns = `id, media_session_id, chat_room_id, initiated_by, call_type, status, version, created_at, started_at, ended_at, ended_by, end_reason, duration_seconds`

func scanSession(row interface{ Scan(...any) error }) (*domain.CallSession, error) {
	s := &domain.CallSession{}
	err := row.Scan(
		&s.ID,
		&s.MediaSessionID,
		&s.ChatRoomID,
		&s.InitiatedBy,
		&s.CallType,
		&s.Status,
		&s.Version,
		&s.CreatedAt,
		&s.StartedAt,
		&s.EndedAt,
		&s.EndedBy,
		&s.EndReason,
		&s.DurationSeconds,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *CallSessionRepo) GetByID(ctx context.Context, id string) (*domain.CallSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM call_sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if err := r.loadParticipants(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *CallSessionRepo) loadParticipants(ctx context.Context, s *domain.CallSession) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, user_id, joined_at, left_at, is_muted, is_video_on
		FROM call_participants
		WHERE session_id = ?
	`, s.ID)
	if err != nil {
		return fmt.Errorf("load call participants: %w", err)
	}
	defer rows.Close()

	s.Participants = s.Participants[:0]
	for rows.Next() {
		var p domain.CallParticipant
		if err := rows.Scan(&p.SessionID, &p.UserID, &p.JoinedAt, &p.LeftAt, &p.IsMuted, &p.IsVideoOn); err != nil {
			return fmt.Errorf("scan call participant: %w", err)
		}
		s.Participants = append(s.Participants, p)
	}
	return rows.Err()
}

// CompareAndSwapStatus applies the session's lifecycle fields iff the stored
// version still equals expectedVersion, bumping the version on success. A
// stale version returns domain.ErrConflict so racing transitions cannot both
// win.
func (r *CallSessionRepo) CompareAndSwapStatus(ctx context.Context, s *domain.CallSession, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE call_sessions
		SET status = ?, started_at = ?, ended_at = ?, ended_by = ?, end_reason = ?, duration_seconds = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, s.Status, s.StartedAt, s.EndedAt, s.EndedBy, s.EndReason, s.DurationSeconds, s.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("cas status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConflict
	}
	s.Version = expectedVersion + 1
	return nil
}

func (r *CallSessionRepo) RecordJoin(ctx context.Context, sessionID, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE call_participants
		SET joined_at = COALESCE(joined_at, ?), left_at = NULL
		WHERE session_id = ? AND user_id = ?
	`, at, sessionID, userID)
	if err != nil {
		return fmt.Errorf("record join: %w", err)
	}
	return nil
}

func (r *CallSessionRepo) RecordLeave(ctx context.Context, sessionID, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE call_participants
		SET left_at = ?
		WHERE session_id = ? AND user_id = ? AND joined_at IS NOT NULL
	`, at, sessionID, userID)
	if err != nil {
		return fmt.Errorf("record leave: %w", err)
	}
	return nil
}

func (r *CallSessionRepo) ListStaleScheduled(ctx context.Context, cutoff time.Time) ([]*domain.CallSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM call_sessions
		WHERE status = 'scheduled' AND created_at < ?
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale scheduled: %w", err)
	}
	defer rows.Close()

	var res []*domain.CallSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, s := range res {
		if err := r.loadParticipants(ctx, s); err != nil {
			return nil, err
		}
	}
	return res, nil
}
