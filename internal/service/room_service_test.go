package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/service"
)

func newRoomService(rooms *MockRoomRepo, rels *MockRelationshipService, dir *MockDirectory) *service.RoomService {
	gate := service.NewRelationshipGate(rooms, rels)
	identities := service.NewIdentityResolver(rels, testLogger())
	return service.NewRoomService(rooms, gate, identities, dir, rels, testQueue(), testLogger())
}

func TestCreateRoom(t *testing.T) {
	creator := domain.Principal{ID: "alice", Role: domain.RoleUser}

	t.Run("DirectRoomHasExactlyTwoParticipants", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		rels := new(MockRelationshipService)
		dir := new(MockDirectory)
		svc := newRoomService(rooms, rels, dir)

		dir.On("Validate", mock.Anything, "bob").Return(&domain.DirectoryEntry{ID: "bob", Role: domain.RoleUser}, nil)
		rooms.On("UsersShareRoom", mock.Anything, "alice", "bob").Return(false, nil)
		rels.On("ValidateMutualFollow", mock.Anything, "alice", "bob").Return(true, nil)
		rooms.On("FindExistingDirect", mock.Anything, "alice", "bob").Return(nil, nil)
		rooms.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.Room) bool {
			return r.Type == domain.RoomDirect && len(r.ParticipantIDs) == 2
		})).Return(nil)

		// Extra ids beyond the pair are dropped, not persisted.
		room, err := svc.Create(context.Background(), creator, service.RoomCreateInput{
			ParticipantIDs: []string{"bob", "carol", "dave"},
		})
		assert.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, room.ParticipantIDs)
		assert.Equal(t, domain.DefaultIdentityRevealSettings(), room.IdentitySettings)
	})

	t.Run("GateDenyPersistsNothing", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		rels := new(MockRelationshipService)
		dir := new(MockDirectory)
		svc := newRoomService(rooms, rels, dir)

		dir.On("Validate", mock.Anything, "bob").Return(&domain.DirectoryEntry{ID: "bob", Role: domain.RoleUser}, nil)
		rooms.On("UsersShareRoom", mock.Anything, "alice", "bob").Return(false, nil)
		rels.On("ValidateMutualFollow", mock.Anything, "alice", "bob").Return(false, nil)

		room, err := svc.Create(context.Background(), creator, service.RoomCreateInput{
			ParticipantIDs: []string{"bob"},
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.Nil(t, room)
		rooms.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("ExistingDirectRoomReused", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		rels := new(MockRelationshipService)
		dir := new(MockDirectory)
		svc := newRoomService(rooms, rels, dir)

		existing := &domain.Room{ID: "room-7", Type: domain.RoomDirect, ParticipantIDs: []string{"alice", "bob"}}

		dir.On("Validate", mock.Anything, "bob").Return(&domain.DirectoryEntry{ID: "bob", Role: domain.RoleUser}, nil)
		rooms.On("UsersShareRoom", mock.Anything, "alice", "bob").Return(true, nil)
		rooms.On("FindExistingDirect", mock.Anything, "alice", "bob").Return(existing, nil)

		room, err := svc.Create(context.Background(), creator, service.RoomCreateInput{
			ParticipantIDs: []string{"bob"},
		})
		assert.NoError(t, err)
		assert.Equal(t, "room-7", room.ID)
		rooms.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("GroupRoomRequiresPrivilegedCreator", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		svc := newRoomService(rooms, new(MockRelationshipService), new(MockDirectory))

		room, err := svc.Create(context.Background(), creator, service.RoomCreateInput{
			Type:           domain.RoomGroup,
			ParticipantIDs: []string{"bob", "carol"},
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.Equal(t, domain.ReasonRoleRequired, domain.ReasonOf(err))
		assert.Nil(t, room)
		rooms.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("TherapistCreatesTherapyRoom", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		rels := new(MockRelationshipService)
		dir := new(MockDirectory)
		svc := newRoomService(rooms, rels, dir)

		therapist := domain.Principal{ID: "dana", Role: domain.RoleTherapist}
		dir.On("Validate", mock.Anything, "bob").Return(&domain.DirectoryEntry{ID: "bob", Role: domain.RoleUser}, nil)
		dir.On("Validate", mock.Anything, "carol").Return(&domain.DirectoryEntry{ID: "carol", Role: domain.RoleUser}, nil)
		rooms.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.Room) bool {
			return r.Type == domain.RoomTherapy && len(r.ParticipantIDs) == 3
		})).Return(nil)

		room, err := svc.Create(context.Background(), therapist, service.RoomCreateInput{
			Type:           domain.RoomTherapy,
			ParticipantIDs: []string{"bob", "carol"},
		})
		assert.NoError(t, err)
		assert.Equal(t, "dana", room.CreatedBy)
	})

	t.Run("UnknownParticipantRejected", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		rels := new(MockRelationshipService)
		dir := new(MockDirectory)
		svc := newRoomService(rooms, rels, dir)

		dir.On("Validate", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

		room, err := svc.Create(context.Background(), creator, service.RoomCreateInput{
			ParticipantIDs: []string{"ghost"},
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Nil(t, room)
	})

	t.Run("UnknownRoomTypeRejected", func(t *testing.T) {
		svc := newRoomService(new(MockRoomRepo), new(MockRelationshipService), new(MockDirectory))

		_, err := svc.Create(context.Background(), creator, service.RoomCreateInput{
			Type:           domain.RoomType("broadcast"),
			ParticipantIDs: []string{"bob"},
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestRoomReads(t *testing.T) {
	viewer := domain.Principal{ID: "alice", Role: domain.RoleUser}
	room := &domain.Room{
		ID:             "room-1",
		Type:           domain.RoomDirect,
		ParticipantIDs: []string{"alice", "bob"},
	}

	t.Run("NonMemberCannotRead", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		svc := newRoomService(rooms, new(MockRelationshipService), new(MockDirectory))

		rooms.On("GetByID", mock.Anything, "room-1").Return(room, nil)

		outsider := domain.Principal{ID: "mallory", Role: domain.RoleUser}
		view, err := svc.Get(context.Background(), "room-1", outsider)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.Nil(t, view)
	})

	t.Run("DirectRoomNamedAfterOtherParticipant", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		rels := new(MockRelationshipService)
		svc := newRoomService(rooms, rels, new(MockDirectory))

		rooms.On("GetByID", mock.Anything, "room-1").Return(room, nil)
		rels.On("GetIdentity", mock.Anything, "bob", "alice").Return(&domain.Identity{
			AnonymousName: "Quiet Fox",
		}, nil)

		view, err := svc.Get(context.Background(), "room-1", viewer)
		assert.NoError(t, err)
		assert.Equal(t, "Quiet Fox", view.DisplayName)

		// The viewer's own identity is not resolved.
		_, ok := view.Participants["alice"]
		assert.False(t, ok)
	})

	t.Run("UpdateIdentitySettingsMemberOnly", func(t *testing.T) {
		rooms := new(MockRoomRepo)
		svc := newRoomService(rooms, new(MockRelationshipService), new(MockDirectory))

		rooms.On("IsParticipant", mock.Anything, "room-1", "mallory").Return(false, nil)

		err := svc.UpdateIdentitySettings(context.Background(), "room-1",
			domain.Principal{ID: "mallory"}, domain.DefaultIdentityRevealSettings())
		assert.ErrorIs(t, err, domain.ErrForbidden)
		rooms.AssertNotCalled(t, "UpdateIdentitySettings", mock.Anything, mock.Anything, mock.Anything)
	})
}
