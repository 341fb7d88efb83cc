package domain

import "time"

// Role classifies a principal for authorization decisions.
type Role string

const (
	RoleUser      Role = "user"
	RoleTherapist Role = "therapist"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Principal is the authenticated actor threaded explicitly through every
// operation. It is resolved once by the auth middleware and never read from
// ambient request state inside services.
type Principal struct {
	ID     string `json:"id"`
	Role   Role   `json:"role"`
	Status string `json:"status"`
}

// IsPrivileged reports whether the principal may create multi-party rooms.
func (p Principal) IsPrivileged() bool {
	return p.Role == RoleTherapist || p.Role == RoleAdmin
}

// CanModerate reports whether the principal may hide or delete other users'
// messages.
func (p Principal) CanModerate() bool {
	return p.Role == RoleModerator || p.Role == RoleAdmin
}

// RoomType distinguishes the four supported room flavors.
type RoomType string

const (
	RoomDirect  RoomType = "direct"
	RoomGroup   RoomType = "group"
	RoomTherapy RoomType = "therapy"
	RoomSupport RoomType = "support"
)

// IdentityRevealSettings controls how participant identities are rendered
// inside a room.
type IdentityRevealSettings struct {
	AllowRealNames      bool `json:"allow_real_names"`
	ShowAnonymousNames  bool `json:"show_anonymous_names"`
	FallbackToAnonymous bool `json:"fallback_to_anonymous"`
}

// DefaultIdentityRevealSettings are seeded on room creation unless the caller
// overrides them.
func DefaultIdentityRevealSettings() IdentityRevealSettings {
	return IdentityRevealSettings{
		AllowRealNames:      true,
		ShowAnonymousNames:  true,
		FallbackToAnonymous: true,
	}
}

// Room represents a chat room. Direct rooms always have exactly two
// participants; multi-party rooms may only be created by therapists or admins.
type Room struct {
	ID                 string                 `db:"id" json:"id"`
	Type               RoomType               `db:"type" json:"type"`
	Name               *string                `db:"name" json:"name,omitempty"`
	CreatedBy          string                 `db:"created_by" json:"created_by"`
	ParticipantIDs     []string               `json:"participant_ids"`
	IdentitySettings   IdentityRevealSettings `json:"identity_settings"`
	LastMessageAt      *time.Time             `db:"last_message_at" json:"last_message_at,omitempty"`
	LastMessagePreview *string                `db:"last_message_preview" json:"last_message_preview,omitempty"`
	CreatedAt          time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time              `db:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether the given principal id is a room member.
func (r *Room) HasParticipant(id string) bool {
	for _, pid := range r.ParticipantIDs {
		if pid == id {
			return true
		}
	}
	return false
}

// IsMultiParty reports whether the room type allows more than two members.
func (r *Room) IsMultiParty() bool {
	return r.Type != RoomDirect
}

// ModerationState tracks the moderation lifecycle of a message.
type ModerationState string

const (
	MessageActive  ModerationState = "active"
	MessageHidden  ModerationState = "hidden"
	MessageDeleted ModerationState = "deleted"
)

// Message is a single chat message. Moderated content is replaced, never
// physically erased; the row stays for the audit trail.
type Message struct {
	ID               string          `db:"id" json:"id"`
	RoomID           string          `db:"room_id" json:"room_id"`
	SenderID         string          `db:"sender_id" json:"sender_id"`
	Content          string          `db:"content" json:"content"`
	IsAnonymous      bool            `db:"is_anonymous" json:"is_anonymous"`
	ReplyToID        *string         `db:"reply_to_id" json:"reply_to_id,omitempty"`
	Attachments      []string        `json:"attachments,omitempty"`
	Moderation       ModerationState `db:"moderation" json:"moderation"`
	ModeratedBy      *string         `db:"moderated_by" json:"moderated_by,omitempty"`
	ModerationReason *string         `db:"moderation_reason" json:"moderation_reason,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// IdentitySnapshot is the per (subject, viewer, room-type) view of a
// participant's displayed identity. It is computed on every read and never
// persisted.
type IdentitySnapshot struct {
	SubjectID            string  `json:"subject_id"`
	AnonymousDisplayName string  `json:"anonymous_display_name"`
	RealName             *string `json:"real_name,omitempty"`
	AllowRealNameInChat  bool    `json:"allow_real_name_in_chat"`
}

// DisplayName returns the name a viewer should see for the subject.
func (s IdentitySnapshot) DisplayName() string {
	if s.AllowRealNameInChat && s.RealName != nil && *s.RealName != "" {
		return *s.RealName
	}
	return s.AnonymousDisplayName
}

// CallType distinguishes audio from video sessions.
type CallType string

const (
	CallVideo CallType = "video"
	CallAudio CallType = "audio"
)

// CallStatus is the call-session state machine state.
type CallStatus string

const (
	CallScheduled  CallStatus = "scheduled"
	CallInProgress CallStatus = "in_progress"
	CallCompleted  CallStatus = "completed"
	CallCancelled  CallStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are permitted.
func (s CallStatus) IsTerminal() bool {
	return s == CallCompleted || s == CallCancelled
}

// CallParticipant is one leg of a call session.
type CallParticipant struct {
	SessionID string     `db:"session_id" json:"session_id"`
	UserID    string     `db:"user_id" json:"user_id"`
	JoinedAt  *time.Time `db:"joined_at" json:"joined_at,omitempty"`
	LeftAt    *time.Time `db:"left_at" json:"left_at,omitempty"`
	IsMuted   bool       `db:"is_muted" json:"is_muted"`
	IsVideoOn bool       `db:"is_video_on" json:"is_video_on"`
}

// CallSession tracks the logical lifecycle of a call. All media state lives in
// the routing collaborator; this row owns authorization and transitions only.
// Version backs the optimistic concurrency check on every status change.
type CallSession struct {
	ID              string            `db:"id" json:"id"`
	MediaSessionID  string            `db:"media_session_id" json:"-"`
	ChatRoomID      string            `db:"chat_room_id" json:"chat_room_id"`
	InitiatedBy     string            `db:"initiated_by" json:"initiated_by"`
	CallType        CallType          `db:"call_type" json:"call_type"`
	Status          CallStatus        `db:"status" json:"status"`
	Participants    []CallParticipant `json:"participants"`
	Version         int64             `db:"version" json:"-"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	StartedAt       *time.Time        `db:"started_at" json:"started_at,omitempty"`
	EndedAt         *time.Time        `db:"ended_at" json:"ended_at,omitempty"`
	EndedBy         *string           `db:"ended_by" json:"ended_by,omitempty"`
	EndReason       *string           `db:"end_reason" json:"end_reason,omitempty"`
	DurationSeconds int64             `db:"duration_seconds" json:"duration_seconds"`
}

// Participant returns the participant record for the given user, if any.
func (c *CallSession) Participant(userID string) *CallParticipant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// HasJoined reports whether the user has an active joined leg.
func (c *CallSession) HasJoined(userID string) bool {
	p := c.Participant(userID)
	return p != nil && p.JoinedAt != nil && p.LeftAt == nil
}
