package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/service"
)

type callFixture struct {
	rooms    *MockRoomRepo
	sessions *MockCallRepo
	rels     *MockRelationshipService
	media    *MockMediaService
	dir      *MockDirectory
	hub      *recordingBroadcaster
	svc      *service.CallService
}

func newCallFixture() *callFixture {
	f := &callFixture{
		rooms:    new(MockRoomRepo),
		sessions: new(MockCallRepo),
		rels:     new(MockRelationshipService),
		media:    new(MockMediaService),
		dir:      new(MockDirectory),
		hub:      &recordingBroadcaster{},
	}
	gate := service.NewRelationshipGate(f.rooms, f.rels)
	identities := service.NewIdentityResolver(f.rels, testLogger())
	f.svc = service.NewCallService(
		f.sessions, f.rooms, gate, identities, f.media, f.dir, testQueue(), f.hub,
		30*time.Second, time.Hour, 5*time.Millisecond,
		testLogger(),
	)
	return f
}

func TestInitiateCall(t *testing.T) {
	caller := domain.Principal{ID: "alice", Role: domain.RoleUser}
	room := &domain.Room{
		ID:             "room-1",
		Type:           domain.RoomDirect,
		ParticipantIDs: []string{"alice", "bob"},
	}

	t.Run("Success", func(t *testing.T) {
		f := newCallFixture()

		f.dir.On("Validate", mock.Anything, "bob").Return(&domain.DirectoryEntry{ID: "bob", Role: domain.RoleUser}, nil)
		f.rooms.On("GetByID", mock.Anything, "room-1").Return(room, nil)
		f.rooms.On("UsersShareRoom", mock.Anything, "alice", "bob").Return(true, nil)
		f.media.On("CreateSession", mock.Anything, []string{"alice", "bob"}, domain.CallVideo, mock.Anything).
			Return(&domain.MediaSession{SessionID: "ms-1"}, nil)
		f.sessions.On("Create", mock.Anything, mock.MatchedBy(func(s *domain.CallSession) bool {
			return s.Status == domain.CallScheduled && s.MediaSessionID == "ms-1" && len(s.Participants) == 2
		})).Return(nil)

		session, err := f.svc.Initiate(context.Background(), caller, "bob", "room-1", domain.CallVideo)
		assert.NoError(t, err)
		assert.Equal(t, domain.CallScheduled, session.Status)
		assert.Equal(t, "alice", session.InitiatedBy)

		// The target gets a real-time invitation.
		events := f.hub.Events()
		assert.Len(t, events, 1)
	})

	t.Run("GateDenyBlocksMediaSession", func(t *testing.T) {
		f := newCallFixture()

		f.dir.On("Validate", mock.Anything, "bob").Return(&domain.DirectoryEntry{ID: "bob", Role: domain.RoleUser}, nil)
		f.rooms.On("GetByID", mock.Anything, "room-1").Return(room, nil)
		f.rooms.On("UsersShareRoom", mock.Anything, "alice", "bob").Return(false, nil)
		f.rels.On("ValidateMutualFollow", mock.Anything, "alice", "bob").Return(false, nil)

		_, err := f.svc.Initiate(context.Background(), caller, "bob", "room-1", domain.CallVideo)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		f.media.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("NonMemberTargetDenied", func(t *testing.T) {
		f := newCallFixture()

		f.dir.On("Validate", mock.Anything, "carol").Return(&domain.DirectoryEntry{ID: "carol", Role: domain.RoleUser}, nil)
		f.rooms.On("GetByID", mock.Anything, "room-1").Return(room, nil)

		_, err := f.svc.Initiate(context.Background(), caller, "carol", "room-1", domain.CallAudio)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.Equal(t, domain.ReasonNotRoomMember, domain.ReasonOf(err))
		f.media.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("InvalidCallType", func(t *testing.T) {
		f := newCallFixture()

		_, err := f.svc.Initiate(context.Background(), caller, "bob", "room-1", domain.CallType("hologram"))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("UnknownTarget", func(t *testing.T) {
		f := newCallFixture()

		f.dir.On("Validate", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

		_, err := f.svc.Initiate(context.Background(), caller, "ghost", "room-1", domain.CallVideo)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func scheduledSession() *domain.CallSession {
	return &domain.CallSession{
		ID:             "cs-1",
		MediaSessionID: "ms-1",
		ChatRoomID:     "room-1",
		InitiatedBy:    "alice",
		CallType:       domain.CallVideo,
		Status:         domain.CallScheduled,
		Version:        1,
		CreatedAt:      time.Now().UTC(),
		Participants: []domain.CallParticipant{
			{SessionID: "cs-1", UserID: "alice"},
			{SessionID: "cs-1", UserID: "bob"},
		},
	}
}

func TestJoinCall(t *testing.T) {
	bob := domain.Principal{ID: "bob", Role: domain.RoleUser}

	t.Run("FirstJoinStartsSession", func(t *testing.T) {
		f := newCallFixture()
		session := scheduledSession()

		f.sessions.On("GetByID", mock.Anything, "cs-1").Return(session, nil)
		f.media.On("Join", mock.Anything, "ms-1", "bob", mock.Anything).
			Return(domain.ConnectionDescriptor{"transport": "udp"}, nil)
		f.sessions.On("RecordJoin", mock.Anything, "cs-1", "bob", mock.Anything).Return(nil)
		f.sessions.On("CompareAndSwapStatus", mock.Anything, mock.MatchedBy(func(s *domain.CallSession) bool {
			return s.Status == domain.CallInProgress && s.StartedAt != nil
		}), int64(1)).Return(nil)

		got, descriptor, err := f.svc.Join(context.Background(), "cs-1", bob, nil)
		assert.NoError(t, err)
		assert.Equal(t, domain.CallInProgress, got.Status)
		assert.Equal(t, "udp", descriptor["transport"])
	})

	t.Run("NonParticipantForbidden", func(t *testing.T) {
		f := newCallFixture()

		f.sessions.On("GetByID", mock.Anything, "cs-1").Return(scheduledSession(), nil)

		mallory := domain.Principal{ID: "mallory", Role: domain.RoleUser}
		_, _, err := f.svc.Join(context.Background(), "cs-1", mallory, nil)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.Equal(t, domain.ReasonNotSessionParticipant, domain.ReasonOf(err))
		f.media.AssertNotCalled(t, "Join", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("TerminalSessionConflicts", func(t *testing.T) {
		f := newCallFixture()
		session := scheduledSession()
		session.Status = domain.CallCancelled

		f.sessions.On("GetByID", mock.Anything, "cs-1").Return(session, nil)

		_, _, err := f.svc.Join(context.Background(), "cs-1", bob, nil)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Equal(t, domain.ReasonSessionTerminal, domain.ReasonOf(err))
	})

	t.Run("MediaFailureLeavesSessionUntouched", func(t *testing.T) {
		f := newCallFixture()
		session := scheduledSession()

		f.sessions.On("GetByID", mock.Anything, "cs-1").Return(session, nil)
		f.media.On("Join", mock.Anything, "ms-1", "bob", mock.Anything).
			Return(nil, domain.ErrUpstream)

		_, _, err := f.svc.Join(context.Background(), "cs-1", bob, nil)
		assert.ErrorIs(t, err, domain.ErrUpstream)
		f.sessions.AssertNotCalled(t, "RecordJoin", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestEndCall(t *testing.T) {
	alice := domain.Principal{ID: "alice", Role: domain.RoleUser}

	t.Run("CompletesInProgressSession", func(t *testing.T) {
		f := newCallFixture()
		session := scheduledSession()
		started := time.Now().UTC().Add(-2 * time.Minute)
		session.Status = domain.CallInProgress
		session.StartedAt = &started
		session.Version = 2

		f.sessions.On("GetByID", mock.Anything, "cs-1").Return(session, nil)
		f.media.On("End", mock.Anything, "ms-1", "alice").Return(nil)
		f.sessions.On("CompareAndSwapStatus", mock.Anything, mock.MatchedBy(func(s *domain.CallSession) bool {
			return s.Status == domain.CallCompleted && s.DurationSeconds >= 119
		}), int64(2)).Return(nil)

		got, err := f.svc.End(context.Background(), "cs-1", alice)
		assert.NoError(t, err)
		assert.Equal(t, domain.CallCompleted, got.Status)
		assert.NotNil(t, got.EndedAt)
	})

	t.Run("TerminalEndIsIdempotent", func(t *testing.T) {
		f := newCallFixture()
		session := scheduledSession()
		session.Status = domain.CallCompleted

		f.sessions.On("GetByID", mock.Anything, "cs-1").Return(session, nil)

		got, err := f.svc.End(context.Background(), "cs-1", alice)
		assert.NoError(t, err)
		assert.Equal(t, domain.CallCompleted, got.Status)
		f.media.AssertNotCalled(t, "End", mock.Anything, mock.Anything, mock.Anything)
		f.sessions.AssertNotCalled(t, "CompareAndSwapStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("StrangerCannotEnd", func(t *testing.T) {
		f := newCallFixture()
		session := scheduledSession()
		session.Status = domain.CallInProgress

		f.sessions.On("GetByID", mock.Anything, "cs-1").Return(session, nil)

		mallory := domain.Principal{ID: "mallory", Role: domain.RoleUser}
		_, err := f.svc.End(context.Background(), "cs-1", mallory)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		f.media.AssertNotCalled(t, "End", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCallStatusIdentityScope(t *testing.T) {
	alice := domain.Principal{ID: "alice", Role: domain.RoleUser}

	revealingIdentity := &domain.Identity{
		AnonymousName:     "Quiet Fox",
		RealNameIfAllowed: strPtr("Sam Okello"),
	}

	t.Run("SupportRoomCallStaysPseudonymous", func(t *testing.T) {
		f := newCallFixture()
		session := scheduledSession()
		session.Status = domain.CallInProgress

		f.sessions.On("GetByID", mock.Anything, "cs-1").Return(session, nil)
		f.rooms.On("GetByID", mock.Anything, "room-1").Return(&domain.Room{
			ID:             "room-1",
			Type:           domain.RoomSupport,
			ParticipantIDs: []string{"alice", "bob"},
		}, nil)
		// The subject allows real names; the room type must still win.
		f.rels.On("GetIdentity", mock.Anything, mock.Anything, "alice").Return(revealingIdentity, nil)

		view, err := f.svc.Status(context.Background(), "cs-1", alice)
		assert.NoError(t, err)
		assert.Nil(t, view.Identities["bob"].RealName)
		assert.Equal(t, "Quiet Fox", view.Identities["bob"].DisplayName())
	})

	t.Run("DirectRoomCallRevealsWhenAllowed", func(t *testing.T) {
		f := newCallFixture()
		session := scheduledSession()
		session.Status = domain.CallInProgress

		f.sessions.On("GetByID", mock.Anything, "cs-1").Return(session, nil)
		f.rooms.On("GetByID", mock.Anything, "room-1").Return(&domain.Room{
			ID:             "room-1",
			Type:           domain.RoomDirect,
			ParticipantIDs: []string{"alice", "bob"},
		}, nil)
		f.rels.On("GetIdentity", mock.Anything, mock.Anything, "alice").Return(revealingIdentity, nil)

		view, err := f.svc.Status(context.Background(), "cs-1", alice)
		assert.NoError(t, err)
		assert.Equal(t, "Sam Okello", view.Identities["bob"].DisplayName())
	})

	t.Run("RoomLookupFailureStaysPseudonymous", func(t *testing.T) {
		f := newCallFixture()
		session := scheduledSession()
		session.Status = domain.CallInProgress

		f.sessions.On("GetByID", mock.Anything, "cs-1").Return(session, nil)
		f.rooms.On("GetByID", mock.Anything, "room-1").Return(nil, domain.ErrUpstream)
		f.rels.On("GetIdentity", mock.Anything, mock.Anything, "alice").Return(revealingIdentity, nil)

		view, err := f.svc.Status(context.Background(), "cs-1", alice)
		assert.NoError(t, err)
		assert.Nil(t, view.Identities["bob"].RealName)
	})
}

func TestMediaOpsRequireJoinedLeg(t *testing.T) {
	bob := domain.Principal{ID: "bob", Role: domain.RoleUser}

	t.Run("NotYetJoined", func(t *testing.T) {
		f := newCallFixture()
		session := scheduledSession()
		session.Status = domain.CallInProgress

		f.sessions.On("GetByID", mock.Anything, "cs-1").Return(session, nil)

		_, err := f.svc.CreateTransport(context.Background(), "cs-1", bob, map[string]any{})
		assert.ErrorIs(t, err, domain.ErrForbidden)
		f.media.AssertNotCalled(t, "CreateTransport", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("JoinedParticipantForwarded", func(t *testing.T) {
		f := newCallFixture()
		session := scheduledSession()
		now := time.Now().UTC()
		session.Status = domain.CallInProgress
		session.Participants[1].JoinedAt = &now

		f.sessions.On("GetByID", mock.Anything, "cs-1").Return(session, nil)
		f.media.On("Produce", mock.Anything, "ms-1", "bob", mock.Anything).
			Return(map[string]any{"producer_id": "p-1"}, nil)

		result, err := f.svc.Produce(context.Background(), "cs-1", bob, map[string]any{"kind": "audio"})
		assert.NoError(t, err)
		assert.Equal(t, "p-1", result["producer_id"])
	})

	t.Run("TerminalSessionConflicts", func(t *testing.T) {
		f := newCallFixture()
		session := scheduledSession()
		session.Status = domain.CallCompleted

		f.sessions.On("GetByID", mock.Anything, "cs-1").Return(session, nil)

		_, err := f.svc.Consume(context.Background(), "cs-1", bob, map[string]any{})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})
}

func TestRingWatcherCancelsMissedCalls(t *testing.T) {
	f := newCallFixture()
	stale := scheduledSession()

	swapped := make(chan struct{})
	var once sync.Once

	f.sessions.On("ListStaleScheduled", mock.Anything, mock.Anything).
		Return([]*domain.CallSession{stale}, nil).Once()
	f.sessions.On("ListStaleScheduled", mock.Anything, mock.Anything).
		Return([]*domain.CallSession{}, nil).Maybe()
	f.sessions.On("CompareAndSwapStatus", mock.Anything, mock.MatchedBy(func(s *domain.CallSession) bool {
		return s.Status == domain.CallCancelled && s.EndReason != nil && *s.EndReason == "missed"
	}), int64(1)).Run(func(args mock.Arguments) {
		once.Do(func() { close(swapped) })
	}).Return(nil)
	f.media.On("End", mock.Anything, "ms-1", "alice").Return(nil)

	go f.svc.RunRingWatcher()
	defer f.svc.Stop()

	select {
	case <-swapped:
	case <-time.After(2 * time.Second):
		t.Fatal("ring watcher never cancelled the stale session")
	}

	f.sessions.AssertExpectations(t)
}
