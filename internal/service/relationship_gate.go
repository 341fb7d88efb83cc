package service

import (
	"context"
	"fmt"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
)

// RelationshipGate decides whether two principals may open a direct channel
// or place a call. It consults the relationship collaborator for social and
// clinical edges; it never mutates relationship state.
type RelationshipGate struct {
	rooms         domain.RoomRepository
	relationships domain.RelationshipService
}

func NewRelationshipGate(rooms domain.RoomRepository, relationships domain.RelationshipService) *RelationshipGate {
	return &RelationshipGate{rooms: rooms, relationships: relationships}
}

// CanEstablishDirectChannel authorizes a direct chat channel between a and b:
//  1. an existing shared room proves a prior relationship;
//  2. a therapist/non-therapist pair requires a verified therapist-client edge;
//  3. any other pair requires a verified mutual follow.
//
// Collaborator failures block the decision with domain.ErrUpstream rather
// than silently allowing or denying.
func (g *RelationshipGate) CanEstablishDirectChannel(ctx context.Context, a, b domain.Principal) error {
	shared, err := g.rooms.UsersShareRoom(ctx, a.ID, b.ID)
	if err != nil {
		return fmt.Errorf("check shared rooms: %w", err)
	}
	if shared {
		return nil
	}

	aTherapist := a.Role == domain.RoleTherapist
	bTherapist := b.Role == domain.RoleTherapist
	if aTherapist != bTherapist {
		therapistID, clientID := a.ID, b.ID
		if bTherapist {
			therapistID, clientID = b.ID, a.ID
		}
		ok, err := g.relationships.CheckTherapySessionAccess(ctx, therapistID, clientID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.WithReason(domain.ErrForbidden, domain.ReasonNoTherapistRelationship)
		}
		return nil
	}

	ok, err := g.relationships.ValidateMutualFollow(ctx, a.ID, b.ID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.WithReason(domain.ErrForbidden, domain.ReasonNoChatRelationship)
	}
	return nil
}

// CanCreateGroupRoom authorizes multi-party room creation. Privileged roles
// bypass the pairwise relationship checks for group-type creation only.
func (g *RelationshipGate) CanCreateGroupRoom(creator domain.Principal) error {
	if !creator.IsPrivileged() {
		return domain.WithReason(domain.ErrForbidden, domain.ReasonRoleRequired)
	}
	return nil
}

// CanCall authorizes placing a call. Stricter than chat: both parties must be
// current members of the room AND satisfy CanEstablishDirectChannel. There is
// no role bypass for calls.
func (g *RelationshipGate) CanCall(ctx context.Context, caller, target domain.Principal, roomID string) error {
	room, err := g.rooms.GetByID(ctx, roomID)
	if err != nil {
		return fmt.Errorf("get room: %w", err)
	}
	if room == nil {
		return domain.ErrNotFound
	}
	if !room.HasParticipant(caller.ID) || !room.HasParticipant(target.ID) {
		return domain.WithReason(domain.ErrForbidden, domain.ReasonNotRoomMember)
	}
	return g.CanEstablishDirectChannel(ctx, caller, target)
}
