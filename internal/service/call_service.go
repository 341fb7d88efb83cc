package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/metrics"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/notify"
)

// Broadcaster pushes real-time events to connected users. Implemented by the
// websocket hub; injected as an interface to keep the service transport-free.
type Broadcaster interface {
	BroadcastToUsers(userIDs []string, payload any)
}

const (
	endReasonMissed = "missed"
	endReasonEnded  = "ended"
)

// CallService owns the call-session state machine. All media-plane work is
// delegated to the routing collaborator; this service owns authorization and
// the session's logical lifecycle only. Transitions are serialized per
// session through a versioned compare-and-swap on the session row.
type CallService struct {
	sessions      domain.CallSessionRepository
	rooms         domain.RoomRepository
	gate          *RelationshipGate
	identities    *IdentityResolver
	media         domain.MediaRoutingService
	directory     domain.PrincipalDirectory
	queue         *notify.Queue
	hub           Broadcaster
	logger        zerolog.Logger

	ringWindow    time.Duration
	maxDuration   time.Duration
	sweepInterval time.Duration
	stopChan      chan struct{}
}

func NewCallService(
	sessions domain.CallSessionRepository,
	rooms domain.RoomRepository,
	gate *RelationshipGate,
	identities *IdentityResolver,
	media domain.MediaRoutingService,
	directory domain.PrincipalDirectory,
	queue *notify.Queue,
	hub Broadcaster,
	ringWindow, maxDuration, sweepInterval time.Duration,
	logger zerolog.Logger,
) *CallService {
	return &CallService{
		sessions:      sessions,
		rooms:         rooms,
		gate:          gate,
		identities:    identities,
		media:         media,
		directory:     directory,
		queue:         queue,
		hub:           hub,
		ringWindow:    ringWindow,
		maxDuration:   maxDuration,
		sweepInterval: sweepInterval,
		stopChan:      make(chan struct{}),
		logger:        logger.With().Str("component", "call-service").Logger(),
	}
}

// Initiate places a call from caller to target within roomID. The gate must
// pass before any media session is created; a media failure blocks the write
// and leaves no local session behind.
func (s *CallService) Initiate(ctx context.Context, caller domain.Principal, targetID, roomID string, callType domain.CallType) (*domain.CallSession, error) {
	if callType != domain.CallVideo && callType != domain.CallAudio {
		return nil, fmt.Errorf("%w: call type must be video or audio", domain.ErrValidation)
	}
	target, err := s.directory.Validate(ctx, targetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown participant %s", domain.ErrValidation, targetID)
		}
		return nil, err
	}
	if err := s.gate.CanCall(ctx, caller, domain.Principal{ID: target.ID, Role: target.Role, Status: target.Status}, roomID); err != nil {
		return nil, err
	}

	participants := []string{caller.ID, targetID}
	mediaSession, err := s.media.CreateSession(ctx, participants, callType, map[string]string{"chat_room_id": roomID})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &domain.CallSession{
		ID:             uuid.NewString(),
		MediaSessionID: mediaSession.SessionID,
		ChatRoomID:     roomID,
		InitiatedBy:    caller.ID,
		CallType:       callType,
		Status:         domain.CallScheduled,
		CreatedAt:      now,
		Participants: []domain.CallParticipant{
			{UserID: caller.ID},
			{UserID: targetID},
		},
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	metrics.CallsInitiated.WithLabelValues(string(callType)).Inc()

	s.queue.Notify(domain.Notification{
		Type:        "INCOMING_CALL",
		RecipientID: targetID,
		Priority:    "high",
		Variables: map[string]any{
			"session_id":     session.ID,
			"caller_id":      caller.ID,
			"call_type":      callType,
			"auto_expire":    true,
			"expire_after_ms": s.ringWindow.Milliseconds(),
		},
	})
	s.hub.BroadcastToUsers([]string{targetID}, map[string]any{
		"event":      "call_invitation",
		"session_id": session.ID,
		"caller_id":  caller.ID,
		"call_type":  callType,
	})

	return session, nil
}

// Join connects a session participant. The first successful join moves the
// session from scheduled to in_progress; repeat joins by the same user are
// idempotent. A media failure leaves the session in its prior state.
func (s *CallService) Join(ctx context.Context, sessionID string, user domain.Principal, capabilities map[string]any) (*domain.CallSession, domain.ConnectionDescriptor, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.Participant(user.ID) == nil {
		return nil, nil, domain.WithReason(domain.ErrForbidden, domain.ReasonNotSessionParticipant)
	}
	if session.Status.IsTerminal() {
		return nil, nil, domain.WithReason(domain.ErrConflict, domain.ReasonSessionTerminal)
	}

	descriptor, err := s.media.Join(ctx, session.MediaSessionID, user.ID, capabilities)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	if err := s.sessions.RecordJoin(ctx, session.ID, user.ID, now); err != nil {
		return nil, nil, fmt.Errorf("record join: %w", err)
	}

	if session.Status == domain.CallScheduled {
		session.Status = domain.CallInProgress
		session.StartedAt = &now
		err := s.sessions.CompareAndSwapStatus(ctx, session, session.Version)
		if errors.Is(err, domain.ErrConflict) {
			// A racing join or the ring watcher moved the row first; re-read
			// the authoritative state.
			session, err = s.getSession(ctx, session.ID)
			if err != nil {
				return nil, nil, err
			}
			if session.Status.IsTerminal() {
				return nil, nil, domain.WithReason(domain.ErrConflict, domain.ReasonSessionTerminal)
			}
		} else if err != nil {
			return nil, nil, fmt.Errorf("transition to in_progress: %w", err)
		}
	}

	session, err = s.getSession(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, descriptor, nil
}

// End terminates a session. Authorized for the initiator, any current
// participant, or a moderating admin/therapist. Ending an already-terminal
// session returns the stored summary without side effects so duplicate end
// requests from racing clients stay safe.
func (s *CallService) End(ctx context.Context, sessionID string, user domain.Principal) (*domain.CallSession, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return session, nil
	}

	authorized := session.InitiatedBy == user.ID ||
		session.Participant(user.ID) != nil ||
		user.Role == domain.RoleAdmin || user.Role == domain.RoleTherapist
	if !authorized {
		return nil, domain.WithReason(domain.ErrForbidden, domain.ReasonNotSessionParticipant)
	}

	if err := s.media.End(ctx, session.MediaSessionID, user.ID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	reason := endReasonEnded
	session.Status = domain.CallCompleted
	session.EndedAt = &now
	session.EndedBy = &user.ID
	session.EndReason = &reason
	if session.StartedAt != nil {
		session.DurationSeconds = int64(now.Sub(*session.StartedAt).Seconds())
	}

	err = s.sessions.CompareAndSwapStatus(ctx, session, session.Version)
	if errors.Is(err, domain.ErrConflict) {
		// Someone else completed the transition; return their result.
		return s.getSession(ctx, session.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("transition to completed: %w", err)
	}
	metrics.CallsCompleted.Inc()

	s.fanOutEnd(session)
	return session, nil
}

// Status returns a read-only projection enriched with resolved participant
// identities and the remaining time for in-progress sessions.
type CallStatusView struct {
	Session          *domain.CallSession                `json:"session"`
	Identities       map[string]domain.IdentitySnapshot `json:"identities"`
	RemainingSeconds *int64                             `json:"remaining_seconds,omitempty"`
}

func (s *CallService) Status(ctx context.Context, sessionID string, viewer domain.Principal) (*CallStatusView, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Participant(viewer.ID) == nil && !viewer.CanModerate() {
		return nil, domain.WithReason(domain.ErrForbidden, domain.ReasonNotSessionParticipant)
	}

	ids := make([]string, 0, len(session.Participants))
	for _, p := range session.Participants {
		ids = append(ids, p.UserID)
	}

	// Identity exposure follows the originating room's type: a call placed in
	// a group or support room must stay pseudonymous. When the room cannot be
	// read, fall back to the pseudonym-only rendering.
	roomType := domain.RoomGroup
	room, err := s.rooms.GetByID(ctx, session.ChatRoomID)
	if err != nil {
		s.logger.Warn().Err(err).Str("room", session.ChatRoomID).Msg("room lookup for call status failed, rendering pseudonyms only")
	} else if room != nil {
		roomType = room.Type
	}
	snapshots := s.identities.ResolveMany(ctx, ids, viewer.ID, roomType)

	view := &CallStatusView{Session: session, Identities: snapshots}
	if session.Status == domain.CallInProgress && session.StartedAt != nil {
		remaining := int64(s.maxDuration.Seconds()) - int64(time.Since(*session.StartedAt).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		view.RemainingSeconds = &remaining
	}
	return view, nil
}

// CreateTransport forwards a transport-creation request for a live
// participant. Pure authorization plus delegation; the result is returned
// unmodified.
func (s *CallService) CreateTransport(ctx context.Context, sessionID string, user domain.Principal, params map[string]any) (map[string]any, error) {
	session, err := s.authorizeLive(ctx, sessionID, user)
	if err != nil {
		return nil, err
	}
	return s.media.CreateTransport(ctx, session.MediaSessionID, user.ID, params)
}

// Produce forwards a media-produce request for a live participant.
func (s *CallService) Produce(ctx context.Context, sessionID string, user domain.Principal, params map[string]any) (map[string]any, error) {
	session, err := s.authorizeLive(ctx, sessionID, user)
	if err != nil {
		return nil, err
	}
	return s.media.Produce(ctx, session.MediaSessionID, user.ID, params)
}

// Consume forwards a media-consume request for a live participant.
func (s *CallService) Consume(ctx context.Context, sessionID string, user domain.Principal, params map[string]any) (map[string]any, error) {
	session, err := s.authorizeLive(ctx, sessionID, user)
	if err != nil {
		return nil, err
	}
	return s.media.Consume(ctx, session.MediaSessionID, user.ID, params)
}

func (s *CallService) authorizeLive(ctx context.Context, sessionID string, user domain.Principal) (*domain.CallSession, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, domain.WithReason(domain.ErrConflict, domain.ReasonSessionTerminal)
	}
	if !session.HasJoined(user.ID) {
		return nil, domain.WithReason(domain.ErrForbidden, domain.ReasonNotSessionParticipant)
	}
	return session, nil
}

func (s *CallService) getSession(ctx context.Context, id string) (*domain.CallSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, domain.ErrNotFound
	}
	return session, nil
}

func (s *CallService) fanOutEnd(session *domain.CallSession) {
	recipients := make([]string, 0, len(session.Participants))
	notifications := make([]domain.Notification, 0, len(session.Participants))
	for _, p := range session.Participants {
		recipients = append(recipients, p.UserID)
		notifications = append(notifications, domain.Notification{
			Type:        "CALL_ENDED",
			RecipientID: p.UserID,
			Variables: map[string]any{
				"session_id":       session.ID,
				"duration_seconds": session.DurationSeconds,
				"end_reason":       session.EndReason,
			},
		})
	}
	s.queue.NotifyBulk(notifications)
	s.hub.BroadcastToUsers(recipients, map[string]any{
		"event":      "call_ended",
		"session_id": session.ID,
		"end_reason": session.EndReason,
	})
}

// RunRingWatcher periodically cancels scheduled sessions whose ring window
// has elapsed, marking them missed. Call with 'go'; Stop shuts it down.
func (s *CallService) RunRingWatcher() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepMissed()
		case <-s.stopChan:
			return
		}
	}
}

// Stop shuts down the ring watcher.
func (s *CallService) Stop() {
	close(s.stopChan)
}

func (s *CallService) sweepMissed() {
	ctx, cancel := context.WithTimeout(context.Background(), s.sweepInterval)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.ringWindow)
	stale, err := s.sessions.ListStaleScheduled(ctx, cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("ring sweep query failed")
		return
	}

	for _, session := range stale {
		now := time.Now().UTC()
		reason := endReasonMissed
		session.Status = domain.CallCancelled
		session.EndedAt = &now
		session.EndReason = &reason

		err := s.sessions.CompareAndSwapStatus(ctx, session, session.Version)
		if errors.Is(err, domain.ErrConflict) {
			// A join or end won the race; the session is no longer missed.
			continue
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("session", session.ID).Msg("missed-call cancellation failed")
			continue
		}
		metrics.CallsMissed.Inc()
		s.logger.Info().Str("session", session.ID).Msg("call cancelled after ring timeout")

		if err := s.media.End(ctx, session.MediaSessionID, session.InitiatedBy); err != nil {
			// Local state is authoritative; media teardown failure is logged only.
			s.logger.Warn().Err(err).Str("session", session.ID).Msg("media teardown after missed call failed")
		}

		s.queue.Notify(domain.Notification{
			Type:        "CALL_MISSED",
			RecipientID: session.InitiatedBy,
			Variables:   map[string]any{"session_id": session.ID},
		})
		s.fanOutEnd(session)
	}
}
