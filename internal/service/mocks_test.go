package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/notify"
)

// Shared mocks for the service tests.

type MockRoomRepo struct {
	mock.Mock
}

func (m *MockRoomRepo) Create(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockRoomRepo) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Room), args.Error(1)
}

func (m *MockRoomRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Room), args.Error(1)
}

func (m *MockRoomRepo) UsersShareRoom(ctx context.Context, userA, userB string) (bool, error) {
	args := m.Called(ctx, userA, userB)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoomRepo) IsParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoomRepo) UpdateIdentitySettings(ctx context.Context, roomID string, settings domain.IdentityRevealSettings) error {
	args := m.Called(ctx, roomID, settings)
	return args.Error(0)
}

func (m *MockRoomRepo) TouchLastMessage(ctx context.Context, roomID, preview string, at time.Time) error {
	args := m.Called(ctx, roomID, preview, at)
	return args.Error(0)
}

func (m *MockRoomRepo) FindExistingDirect(ctx context.Context, userA, userB string) (*domain.Room, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Room), args.Error(1)
}

func (m *MockRoomRepo) MarkRead(ctx context.Context, roomID, userID string, at time.Time) error {
	args := m.Called(ctx, roomID, userID, at)
	return args.Error(0)
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) ListForRoom(ctx context.Context, roomID string, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, roomID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) Moderate(ctx context.Context, id string, state domain.ModerationState, moderatorID, reason, replacement string) error {
	args := m.Called(ctx, id, state, moderatorID, reason, replacement)
	return args.Error(0)
}

func (m *MockMessageRepo) CountFromSenderSince(ctx context.Context, roomID, senderID string, since time.Time) (int, error) {
	args := m.Called(ctx, roomID, senderID, since)
	return args.Int(0), args.Error(1)
}

type MockCallRepo struct {
	mock.Mock
}

func (m *MockCallRepo) Create(ctx context.Context, s *domain.CallSession) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockCallRepo) GetByID(ctx context.Context, id string) (*domain.CallSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallSession), args.Error(1)
}

func (m *MockCallRepo) CompareAndSwapStatus(ctx context.Context, s *domain.CallSession, expectedVersion int64) error {
	args := m.Called(ctx, s, expectedVersion)
	return args.Error(0)
}

func (m *MockCallRepo) RecordJoin(ctx context.Context, sessionID, userID string, at time.Time) error {
	args := m.Called(ctx, sessionID, userID, at)
	return args.Error(0)
}

func (m *MockCallRepo) RecordLeave(ctx context.Context, sessionID, userID string, at time.Time) error {
	args := m.Called(ctx, sessionID, userID, at)
	return args.Error(0)
}

func (m *MockCallRepo) ListStaleScheduled(ctx context.Context, cutoff time.Time) ([]*domain.CallSession, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CallSession), args.Error(1)
}

type MockRelationshipService struct {
	mock.Mock
}

func (m *MockRelationshipService) ValidateMutualFollow(ctx context.Context, idA, idB string) (bool, error) {
	args := m.Called(ctx, idA, idB)
	return args.Bool(0), args.Error(1)
}

func (m *MockRelationshipService) CheckTherapySessionAccess(ctx context.Context, therapistID, clientID string) (bool, error) {
	args := m.Called(ctx, therapistID, clientID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRelationshipService) GetIdentity(ctx context.Context, subjectID, viewerID string) (*domain.Identity, error) {
	args := m.Called(ctx, subjectID, viewerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *MockRelationshipService) NotifyRoomCreated(ctx context.Context, roomID string, participantIDs []string) error {
	args := m.Called(ctx, roomID, participantIDs)
	return args.Error(0)
}

type MockMediaService struct {
	mock.Mock
}

func (m *MockMediaService) CreateSession(ctx context.Context, participantIDs []string, callType domain.CallType, metadata map[string]string) (*domain.MediaSession, error) {
	args := m.Called(ctx, participantIDs, callType, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MediaSession), args.Error(1)
}

func (m *MockMediaService) Join(ctx context.Context, sessionID, userID string, capabilities map[string]any) (domain.ConnectionDescriptor, error) {
	args := m.Called(ctx, sessionID, userID, capabilities)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.ConnectionDescriptor), args.Error(1)
}

func (m *MockMediaService) End(ctx context.Context, sessionID, endedBy string) error {
	args := m.Called(ctx, sessionID, endedBy)
	return args.Error(0)
}

func (m *MockMediaService) CreateTransport(ctx context.Context, sessionID, userID string, params map[string]any) (map[string]any, error) {
	args := m.Called(ctx, sessionID, userID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *MockMediaService) Produce(ctx context.Context, sessionID, userID string, params map[string]any) (map[string]any, error) {
	args := m.Called(ctx, sessionID, userID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *MockMediaService) Consume(ctx context.Context, sessionID, userID string, params map[string]any) (map[string]any, error) {
	args := m.Called(ctx, sessionID, userID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Validate(ctx context.Context, id string) (*domain.DirectoryEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DirectoryEntry), args.Error(1)
}

type MockWindowStore struct {
	mock.Mock
}

func (m *MockWindowStore) CountAndRecord(ctx context.Context, roomID, senderID string, window time.Duration, limit int) (int, bool, error) {
	args := m.Called(ctx, roomID, senderID, window, limit)
	return args.Int(0), args.Bool(1), args.Error(2)
}

// nopDispatcher satisfies NotificationDispatcher without recording anything.
type nopDispatcher struct{}

func (nopDispatcher) Send(ctx context.Context, n domain.Notification) error       { return nil }
func (nopDispatcher) SendBulk(ctx context.Context, ns []domain.Notification) error { return nil }

// recordingBroadcaster captures broadcast payloads for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []any
}

func (b *recordingBroadcaster) BroadcastToUsers(userIDs []string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, payload)
}

func (b *recordingBroadcaster) Events() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]any(nil), b.events...)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testQueue() *notify.Queue {
	return notify.NewQueue(nopDispatcher{}, 16, time.Second, testLogger())
}
