package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/service"
)

func newMessageService(rooms *MockRoomRepo, messages *MockMessageRepo, rels *MockRelationshipService, window *MockWindowStore) *service.MessageService {
	identities := service.NewIdentityResolver(rels, testLogger())
	limiter := service.NewRateLimiter(window, 60*time.Second, 10)
	return service.NewMessageService(rooms, messages, identities, limiter, &recordingBroadcaster{}, 5000, 100, testLogger())
}

func TestSendMessage(t *testing.T) {
	sender := domain.Principal{ID: "alice", Role: domain.RoleUser}
	room := &domain.Room{
		ID:             "room-1",
		Type:           domain.RoomDirect,
		ParticipantIDs: []string{"alice", "bob"},
	}

	t.Run("Success", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		messages := new(MockMessageRepo)
		window := new(MockWindowStore)
		svc := newMessageService(rooms, messages, new(MockRelationshipService), window)

		rooms.On("GetByID", mock.Anything, "room-1").Return(room, nil)
		window.On("CountAndRecord", mock.Anything, "room-1", "alice", mock.Anything, 10).
			Return(3, true, nil)
		messages.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
			return m.RoomID == "room-1" && m.SenderID == "alice" && m.Moderation == domain.MessageActive
		})).Return(nil)
		rooms.On("TouchLastMessage", mock.Anything, "room-1", "hello", mock.Anything).Return(nil)

		msg, err := svc.Send(context.Background(), sender, service.MessageCreateInput{
			RoomID:  "room-1",
			Content: "hello",
		})
		assert.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
	})

	t.Run("RateLimitedSendNotPersisted", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		messages := new(MockMessageRepo)
		window := new(MockWindowStore)
		svc := newMessageService(rooms, messages, new(MockRelationshipService), window)

		rooms.On("GetByID", mock.Anything, "room-1").Return(room, nil)
		window.On("CountAndRecord", mock.Anything, "room-1", "alice", mock.Anything, 10).
			Return(10, false, nil)

		_, err := svc.Send(context.Background(), sender, service.MessageCreateInput{
			RoomID:  "room-1",
			Content: "too fast",
		})
		assert.ErrorIs(t, err, domain.ErrRateLimited)
		messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("NonMemberCannotSend", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		messages := new(MockMessageRepo)
		svc := newMessageService(rooms, messages, new(MockRelationshipService), new(MockWindowStore))

		rooms.On("GetByID", mock.Anything, "room-1").Return(room, nil)

		outsider := domain.Principal{ID: "mallory", Role: domain.RoleUser}
		_, err := svc.Send(context.Background(), outsider, service.MessageCreateInput{
			RoomID:  "room-1",
			Content: "hi",
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.Equal(t, domain.ReasonNotRoomMember, domain.ReasonOf(err))
	})

	t.Run("EmptyContentRejected", func(t *testing.T) {
		svc := newMessageService(new(MockRoomRepo), new(MockMessageRepo), new(MockRelationshipService), new(MockWindowStore))

		_, err := svc.Send(context.Background(), sender, service.MessageCreateInput{RoomID: "room-1"})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("OversizedContentRejected", func(t *testing.T) {
		svc := newMessageService(new(MockRoomRepo), new(MockMessageRepo), new(MockRelationshipService), new(MockWindowStore))

		_, err := svc.Send(context.Background(), sender, service.MessageCreateInput{
			RoomID:  "room-1",
			Content: strings.Repeat("a", 5001),
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestListMessages(t *testing.T) {
	viewer := domain.Principal{ID: "alice", Role: domain.RoleUser}
	room := &domain.Room{
		ID:             "room-1",
		Type:           domain.RoomDirect,
		ParticipantIDs: []string{"alice", "bob"},
	}

	t.Run("AnonymousFlagForcesPseudonym", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		messages := new(MockMessageRepo)
		rels := new(MockRelationshipService)
		svc := newMessageService(rooms, messages, rels, new(MockWindowStore))

		rooms.On("GetByID", mock.Anything, "room-1").Return(room, nil)
		messages.On("ListForRoom", mock.Anything, "room-1", 100).Return([]*domain.Message{
			{ID: "m1", RoomID: "room-1", SenderID: "bob", Content: "hi", Moderation: domain.MessageActive},
			{ID: "m2", RoomID: "room-1", SenderID: "bob", Content: "anon", IsAnonymous: true, Moderation: domain.MessageActive},
		}, nil)
		// Room type allows the real name; the per-message flag must still win.
		rels.On("GetIdentity", mock.Anything, "bob", "alice").Return(&domain.Identity{
			AnonymousName:     "Quiet Fox",
			RealNameIfAllowed: strPtr("Sam Okello"),
		}, nil)

		views, err := svc.List(context.Background(), "room-1", viewer, 0)
		assert.NoError(t, err)
		assert.Len(t, views, 2)
		assert.Equal(t, "Sam Okello", views[0].SenderName)
		assert.Equal(t, "Quiet Fox", views[1].SenderName)
	})

	t.Run("ModeratedContentRedacted", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		messages := new(MockMessageRepo)
		rels := new(MockRelationshipService)
		svc := newMessageService(rooms, messages, rels, new(MockWindowStore))

		rooms.On("GetByID", mock.Anything, "room-1").Return(room, nil)
		messages.On("ListForRoom", mock.Anything, "room-1", 100).Return([]*domain.Message{
			{ID: "m1", RoomID: "room-1", SenderID: "bob", Content: "offensive", Moderation: domain.MessageHidden},
		}, nil)
		rels.On("GetIdentity", mock.Anything, "bob", "alice").Return(&domain.Identity{
			AnonymousName: "Quiet Fox",
		}, nil)

		views, err := svc.List(context.Background(), "room-1", viewer, 0)
		assert.NoError(t, err)
		assert.NotEqual(t, "offensive", views[0].Message.Content)
	})

	t.Run("NonMemberCannotList", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		svc := newMessageService(rooms, new(MockMessageRepo), new(MockRelationshipService), new(MockWindowStore))

		rooms.On("GetByID", mock.Anything, "room-1").Return(room, nil)

		outsider := domain.Principal{ID: "mallory", Role: domain.RoleUser}
		_, err := svc.List(context.Background(), "room-1", outsider, 0)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestModerateMessage(t *testing.T) {
	t.Run("RequiresModeratorRole", func(t *testing.T) {
		messages := new(MockMessageRepo)
		svc := newMessageService(new(MockRoomRepo), messages, new(MockRelationshipService), new(MockWindowStore))

		err := svc.Moderate(context.Background(), domain.Principal{ID: "alice", Role: domain.RoleUser},
			"m1", domain.MessageHidden, "spam")
		assert.ErrorIs(t, err, domain.ErrForbidden)
		messages.AssertNotCalled(t, "Moderate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ModeratorHidesMessage", func(t *testing.T) {
		messages := new(MockMessageRepo)
		svc := newMessageService(new(MockRoomRepo), messages, new(MockRelationshipService), new(MockWindowStore))

		moderator := domain.Principal{ID: "mod", Role: domain.RoleModerator}
		messages.On("GetByID", mock.Anything, "m1").Return(&domain.Message{ID: "m1"}, nil)
		messages.On("Moderate", mock.Anything, "m1", domain.MessageHidden, "mod", "spam", mock.Anything).Return(nil)

		assert.NoError(t, svc.Moderate(context.Background(), moderator, "m1", domain.MessageHidden, "spam"))
	})

	t.Run("ActiveIsNotAModerationTarget", func(t *testing.T) {
		svc := newMessageService(new(MockRoomRepo), new(MockMessageRepo), new(MockRelationshipService), new(MockWindowStore))

		moderator := domain.Principal{ID: "mod", Role: domain.RoleModerator}
		err := svc.Moderate(context.Background(), moderator, "m1", domain.MessageActive, "undo")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}
