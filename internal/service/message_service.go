package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/metrics"
)

const moderatedPlaceholder = "[message removed by moderator]"

// MessageService handles message creation, listing with per-viewer identity
// rendering, and moderation.
type MessageService struct {
	rooms      domain.RoomRepository
	messages   domain.MessageRepository
	identities *IdentityResolver
	limiter    *RateLimiter
	hub        Broadcaster
	logger     zerolog.Logger

	MaxContentRunes  int
	DefaultListLimit int
}

func NewMessageService(
	rooms domain.RoomRepository,
	messages domain.MessageRepository,
	identities *IdentityResolver,
	limiter *RateLimiter,
	hub Broadcaster,
	maxContentRunes, defaultListLimit int,
	logger zerolog.Logger,
) *MessageService {
	return &MessageService{
		rooms:            rooms,
		messages:         messages,
		identities:       identities,
		limiter:          limiter,
		hub:              hub,
		MaxContentRunes:  maxContentRunes,
		DefaultListLimit: defaultListLimit,
		logger:           logger.With().Str("component", "message-service").Logger(),
	}
}

type MessageCreateInput struct {
	RoomID      string
	Content     string
	IsAnonymous bool
	ReplyToID   *string
	Attachments []string
}

// Send validates membership and the rate limit, then persists the message and
// refreshes the room's last-message cache.
func (s *MessageService) Send(ctx context.Context, sender domain.Principal, in MessageCreateInput) (*domain.Message, error) {
	if in.Content == "" && len(in.Attachments) == 0 {
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrValidation)
	}
	if len([]rune(in.Content)) > s.MaxContentRunes {
		return nil, fmt.Errorf("%w: message content exceeds %d characters", domain.ErrValidation, s.MaxContentRunes)
	}

	room, err := s.rooms.GetByID(ctx, in.RoomID)
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if room == nil {
		return nil, domain.ErrNotFound
	}
	if !room.HasParticipant(sender.ID) {
		return nil, domain.WithReason(domain.ErrForbidden, domain.ReasonNotRoomMember)
	}

	if err := s.limiter.CheckAndRecord(ctx, in.RoomID, sender.ID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:          uuid.NewString(),
		RoomID:      in.RoomID,
		SenderID:    sender.ID,
		Content:     in.Content,
		IsAnonymous: in.IsAnonymous,
		ReplyToID:   in.ReplyToID,
		Attachments: in.Attachments,
		Moderation:  domain.MessageActive,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	metrics.MessagesSent.WithLabelValues(string(room.Type)).Inc()

	if err := s.rooms.TouchLastMessage(ctx, room.ID, preview(in.Content), msg.CreatedAt); err != nil {
		// Cache refresh only; the message itself is already durable.
		s.logger.Warn().Err(err).Str("room", room.ID).Msg("last-message cache update failed")
	}

	s.hub.BroadcastToUsers(room.ParticipantIDs, map[string]any{
		"event":   "message_received",
		"message": msg,
	})
	return msg, nil
}

// MessageView is a message rendered for a specific viewer.
type MessageView struct {
	Message    *domain.Message `json:"message"`
	SenderName string          `json:"sender_name"`
}

// List returns the room's messages rendered for the viewer. A message-level
// anonymous flag forces the pseudonym even in rooms that allow real names;
// per-message privacy always wins over per-room policy.
func (s *MessageService) List(ctx context.Context, roomID string, viewer domain.Principal, limit int) ([]*MessageView, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if room == nil {
		return nil, domain.ErrNotFound
	}
	if !room.HasParticipant(viewer.ID) {
		return nil, domain.WithReason(domain.ErrForbidden, domain.ReasonNotRoomMember)
	}

	if limit <= 0 || limit > s.DefaultListLimit {
		limit = s.DefaultListLimit
	}
	msgs, err := s.messages.ListForRoom(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	senders := make([]string, 0, len(msgs))
	seen := make(map[string]struct{})
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senders = append(senders, m.SenderID)
		}
	}
	snapshots := s.identities.ResolveMany(ctx, senders, viewer.ID, room.Type)

	views := make([]*MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, s.render(m, snapshots[m.SenderID]))
	}
	return views, nil
}

func (s *MessageService) render(m *domain.Message, snap domain.IdentitySnapshot) *MessageView {
	name := snap.DisplayName()
	if m.IsAnonymous {
		name = snap.AnonymousDisplayName
	}
	if m.Moderation != domain.MessageActive {
		redacted := *m
		redacted.Content = moderatedPlaceholder
		return &MessageView{Message: &redacted, SenderName: name}
	}
	return &MessageView{Message: m, SenderName: name}
}

// Moderate hides or deletes a message. The content is replaced and the
// moderation audit fields recorded; the row is never physically erased.
func (s *MessageService) Moderate(ctx context.Context, caller domain.Principal, messageID string, state domain.ModerationState, reason string) error {
	if !caller.CanModerate() {
		return domain.WithReason(domain.ErrForbidden, domain.ReasonRoleRequired)
	}
	if state != domain.MessageHidden && state != domain.MessageDeleted {
		return fmt.Errorf("%w: moderation state must be hidden or deleted", domain.ErrValidation)
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return domain.ErrNotFound
	}
	return s.messages.Moderate(ctx, messageID, state, caller.ID, reason, moderatedPlaceholder)
}

// RoomParticipants returns the member ids of a room, for event broadcasts.
func (s *MessageService) RoomParticipants(ctx context.Context, roomID string) ([]string, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if room == nil {
		return nil, domain.ErrNotFound
	}
	return room.ParticipantIDs, nil
}

func preview(content string) string {
	const max = 120
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max])
}
