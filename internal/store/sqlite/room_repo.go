package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
)

type RoomRepo struct {
	db *sql.DB
}

func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

var _ domain.RoomRepository = (*RoomRepo)(nil)

func (r *RoomRepo) Create(ctx context.Context, room *domain.Room) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rooms (id, type, name, created_by, allow_real_names, show_anonymous_names, fallback_to_anonymous, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, room.ID, room.Type, room.Name, room.CreatedBy,
		room.IdentitySettings.AllowRealNames, room.IdentitySettings.ShowAnonymousNames, room.IdentitySettings.FallbackToAnonymous,
		room.CreatedAt, room.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}

	for _, uid := range room.ParticipantIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO room_participants (room_id, user_id, joined_at)
			VALUES (?, ?, ?)
		`, room.ID, uid, room.CreatedAt); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const roomColumns = `id, type, name, created_by, allow_real_names, show_anonymous_names, fallback_to_anonymous, last_message_at, last_message_preview, created_at, updated_at`

func scanRoom(row interface{ Scan(...any) error }) (*domain.Room, error) {
	room := &domain.Room{}
	err := row.Scan(
		&room.ID,
		&room.Type,
		&room.Name,
		&room.CreatedBy,
		&room.IdentitySettings.AllowRealNames,
		&room.IdentitySettings.ShowAnonymousNames,
		&room.IdentitySettings.FallbackToAnonymous,
		&room.LastMessageAt,
		&room.LastMessagePreview,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (r *RoomRepo) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
	room, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if err := r.loadParticipants(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (r *RoomRepo) loadParticipants(ctx context.Context, room *domain.Room) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM room_participants WHERE room_id = ? ORDER BY joined_at
	`, room.ID)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()

	room.ParticipantIDs = room.ParticipantIDs[:0]
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		room.ParticipantIDs = append(room.ParticipantIDs, uid)
	}
	return rows.Err()
}

func (r *RoomRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE id IN (SELECT room_id FROM room_participants WHERE user_id = ?)
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var res []*domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		res = append(res, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, room := range res {
		if err := r.loadParticipants(ctx, room); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r *RoomRepo) UsersShareRoom(ctx context.Context, userA, userB string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM room_participants a
			JOIN room_participants b ON a.room_id = b.room_id
			WHERE a.user_id = ? AND b.user_id = ?
		)
	`, userA, userB).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check shared room: %w", err)
	}
	return exists == 1, nil
}

func (r *RoomRepo) IsParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM room_participants WHERE room_id = ? AND user_id = ?)
	`, roomID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return exists == 1, nil
}

func (r *RoomRepo) UpdateIdentitySettings(ctx context.Context, roomID string, settings domain.IdentityRevealSettings) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rooms
		SET allow_real_names = ?, show_anonymous_names = ?, fallback_to_anonymous = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, settings.AllowRealNames, settings.ShowAnonymousNames, settings.FallbackToAnonymous, roomID)
	if err != nil {
		return fmt.Errorf("update identity settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RoomRepo) TouchLastMessage(ctx context.Context, roomID, preview string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rooms
		SET last_message_at = ?, last_message_preview = ?, updated_at = ?
		WHERE id = ?
	`, at, preview, at, roomID)
	if err != nil {
		return fmt.Errorf("touch last message: %w", err)
	}
	return nil
}

func (r *RoomRepo) FindExistingDirect(ctx context.Context, userA, userB string) (*domain.Room, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE type = 'direct'
		AND id IN (SELECT room_id FROM room_participants WHERE user_id = ?)
		AND id IN (SELECT room_id FROM room_participants WHERE user_id = ?)
		LIMIT 1
	`, userA, userB)
	room, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find direct room: %w", err)
	}
	if err := r.loadParticipants(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (r *RoomRepo) MarkRead(ctx context.Context, roomID, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE room_participants SET last_read_at = ? WHERE room_id = ? AND user_id = ?
	`, at, roomID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}
