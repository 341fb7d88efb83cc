package domain

import (
	"context"
	"time"
)

// RoomRepository defines persistence operations for rooms and membership.
type RoomRepository interface {
	Create(ctx context.Context, room *Room) error
	GetByID(ctx context.Context, id string) (*Room, error)
	ListForUser(ctx context.Context, userID string) ([]*Room, error)
	// UsersShareRoom reports whether both users co-occupy any room.
	UsersShareRoom(ctx context.Context, userA, userB string) (bool, error)
	IsParticipant(ctx context.Context, roomID, userID string) (bool, error)
	UpdateIdentitySettings(ctx context.Context, roomID string, settings IdentityRevealSettings) error
	TouchLastMessage(ctx context.Context, roomID, preview string, at time.Time) error
	FindExistingDirect(ctx context.Context, userA, userB string) (*Room, error)
	MarkRead(ctx context.Context, roomID, userID string, at time.Time) error
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	ListForRoom(ctx context.Context, roomID string, limit int) ([]*Message, error)
	// Moderate replaces content and records the moderation audit fields; the
	// original row is never physically erased.
	Moderate(ctx context.Context, id string, state ModerationState, moderatorID, reason, replacement string) error
	// CountFromSenderSince counts messages from the sender in the room created
	// at or after the cutoff. Backs the SQL rate-limit window.
	CountFromSenderSince(ctx context.Context, roomID, senderID string, since time.Time) (int, error)
}

// CallSessionRepository defines persistence for call sessions. Status writes
// go through compare-and-swap on the session version so two racing
// transitions cannot both win.
type CallSessionRepository interface {
	Create(ctx context.Context, s *CallSession) error
	GetByID(ctx context.Context, id string) (*CallSession, error)
	// CompareAndSwapStatus updates status and lifecycle fields iff the stored
	// version equals expectedVersion. Returns ErrConflict when the row moved.
	CompareAndSwapStatus(ctx context.Context, s *CallSession, expectedVersion int64) error
	// RecordJoin sets joinedAt for the participant leg if not already set.
	RecordJoin(ctx context.Context, sessionID, userID string, at time.Time) error
	RecordLeave(ctx context.Context, sessionID, userID string, at time.Time) error
	// ListStaleScheduled returns scheduled sessions created before the cutoff,
	// used by the ring-timeout watcher.
	ListStaleScheduled(ctx context.Context, cutoff time.Time) ([]*CallSession, error)
}

// WindowStore counts and records send events in a trailing time window per
// (room, sender) pair. Implementations must be safe under concurrent writers
// from multiple request-handling workers.
type WindowStore interface {
	// CountAndRecord returns the number of events within the trailing window
	// before this call and whether the new event was admitted. An admitted
	// event is recorded; a rejected one is not.
	CountAndRecord(ctx context.Context, roomID, senderID string, window time.Duration, limit int) (int, bool, error)
}
