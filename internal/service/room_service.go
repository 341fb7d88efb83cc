package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/metrics"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/notify"
)

// RoomService orchestrates room creation and reads, composing the
// relationship gate, the principal directory and the identity resolver.
type RoomService struct {
	rooms         domain.RoomRepository
	gate          *RelationshipGate
	identities    *IdentityResolver
	directory     domain.PrincipalDirectory
	relationships domain.RelationshipService
	queue         *notify.Queue
	logger        zerolog.Logger
}

func NewRoomService(
	rooms domain.RoomRepository,
	gate *RelationshipGate,
	identities *IdentityResolver,
	directory domain.PrincipalDirectory,
	relationships domain.RelationshipService,
	queue *notify.Queue,
	logger zerolog.Logger,
) *RoomService {
	return &RoomService{
		rooms:         rooms,
		gate:          gate,
		identities:    identities,
		directory:     directory,
		relationships: relationships,
		queue:         queue,
		logger:        logger.With().Str("component", "room-service").Logger(),
	}
}

type RoomCreateInput struct {
	Name             *string
	Type             domain.RoomType
	ParticipantIDs   []string
	IdentitySettings *domain.IdentityRevealSettings
}

// RoomView is a room enriched with per-viewer identity resolution.
type RoomView struct {
	Room         *domain.Room                       `json:"room"`
	DisplayName  string                             `json:"display_name"`
	Participants map[string]domain.IdentitySnapshot `json:"participants"`
}

// Create creates a room on behalf of the creator. Direct rooms are truncated
// to exactly two participants and gated pairwise; multi-party rooms require a
// privileged creator. Nothing is persisted when any check fails.
func (s *RoomService) Create(ctx context.Context, creator domain.Principal, in RoomCreateInput) (*domain.Room, error) {
	if len(in.ParticipantIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one participant is required", domain.ErrValidation)
	}

	// Deduplicate and force-include the creator.
	uniqueIDs := make([]string, 0, len(in.ParticipantIDs)+1)
	seen := map[string]struct{}{creator.ID: {}}
	uniqueIDs = append(uniqueIDs, creator.ID)
	for _, id := range in.ParticipantIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniqueIDs = append(uniqueIDs, id)
	}

	roomType := in.Type
	if roomType == "" {
		roomType = domain.RoomDirect
	}
	switch roomType {
	case domain.RoomDirect, domain.RoomGroup, domain.RoomTherapy, domain.RoomSupport:
	default:
		return nil, fmt.Errorf("%w: unknown room type %q", domain.ErrValidation, roomType)
	}

	if roomType == domain.RoomDirect {
		if len(uniqueIDs) < 2 {
			return nil, fmt.Errorf("%w: a direct room needs a second participant", domain.ErrValidation)
		}
		uniqueIDs = uniqueIDs[:2]

		other, err := s.validateParticipant(ctx, uniqueIDs[1])
		if err != nil {
			return nil, err
		}
		if err := s.gate.CanEstablishDirectChannel(ctx, creator, principalOf(other)); err != nil {
			return nil, err
		}

		// An existing direct room between the pair is reused, not duplicated.
		if existing, err := s.rooms.FindExistingDirect(ctx, uniqueIDs[0], uniqueIDs[1]); err != nil {
			return nil, fmt.Errorf("find existing direct room: %w", err)
		} else if existing != nil {
			return existing, nil
		}
	} else {
		if err := s.gate.CanCreateGroupRoom(creator); err != nil {
			return nil, err
		}
		for _, id := range uniqueIDs[1:] {
			if _, err := s.validateParticipant(ctx, id); err != nil {
				return nil, err
			}
		}
	}

	settings := domain.DefaultIdentityRevealSettings()
	if in.IdentitySettings != nil {
		settings = *in.IdentitySettings
	}

	now := time.Now().UTC()
	room := &domain.Room{
		ID:               uuid.NewString(),
		Type:             roomType,
		Name:             in.Name,
		CreatedBy:        creator.ID,
		ParticipantIDs:   uniqueIDs,
		IdentitySettings: settings,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("persist room: %w", err)
	}
	metrics.RoomsCreated.WithLabelValues(string(roomType)).Inc()

	// Relationship-service notification is fire-and-forget; its failure must
	// not fail room creation.
	roomID, participants := room.ID, append([]string(nil), room.ParticipantIDs...)
	s.queue.Submit(notify.Task{
		Label: "relationship:room-created",
		Run: func(ctx context.Context) error {
			return s.relationships.NotifyRoomCreated(ctx, roomID, participants)
		},
	})

	return room, nil
}

// validateParticipant resolves a participant id against the principal
// directory. A missing principal is a validation error naming the id.
func (s *RoomService) validateParticipant(ctx context.Context, id string) (*domain.DirectoryEntry, error) {
	entry, err := s.directory.Validate(ctx, id)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, fmt.Errorf("%w: unknown participant %s", domain.ErrValidation, id)
		}
		return nil, err
	}
	return entry, nil
}

func principalOf(e *domain.DirectoryEntry) domain.Principal {
	return domain.Principal{ID: e.ID, Role: e.Role, Status: e.Status}
}

// Get returns the room enriched with the viewer's resolved identities.
func (s *RoomService) Get(ctx context.Context, roomID string, viewer domain.Principal) (*RoomView, error) {
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
	return s.enrich(ctx, room, viewer), nil
}

// ListForViewer returns all rooms the viewer participates in, each enriched
// with resolved identities.
func (s *RoomService) ListForViewer(ctx context.Context, viewer domain.Principal) ([]*RoomView, error) {
	rooms, err := s.rooms.ListForUser(ctx, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	views := make([]*RoomView, 0, len(rooms))
	for _, room := range rooms {
		views = append(views, s.enrich(ctx, room, viewer))
	}
	return views, nil
}

// UpdateIdentitySettings replaces the room's identity reveal settings.
// Member-only.
func (s *RoomService) UpdateIdentitySettings(ctx context.Context, roomID string, caller domain.Principal, settings domain.IdentityRevealSettings) error {
	member, err := s.rooms.IsParticipant(ctx, roomID, caller.ID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return domain.WithReason(domain.ErrForbidden, domain.ReasonNotRoomMember)
	}
	return s.rooms.UpdateIdentitySettings(ctx, roomID, settings)
}

// MarkRead records the viewer's read position in the room.
func (s *RoomService) MarkRead(ctx context.Context, roomID string, viewer domain.Principal) error {
	member, err := s.rooms.IsParticipant(ctx, roomID, viewer.ID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return domain.WithReason(domain.ErrForbidden, domain.ReasonNotRoomMember)
	}
	return s.rooms.MarkRead(ctx, roomID, viewer.ID, time.Now().UTC())
}

// enrich resolves identities for all non-viewer participants concurrently and
// computes the room display name. A failed resolution degrades that one
// participant to anonymous instead of failing the read.
func (s *RoomService) enrich(ctx context.Context, room *domain.Room, viewer domain.Principal) *RoomView {
	others := make([]string, 0, len(room.ParticipantIDs))
	for _, id := range room.ParticipantIDs {
		if id != viewer.ID {
			others = append(others, id)
		}
	}
	snapshots := s.identities.ResolveMany(ctx, others, viewer.ID, room.Type)

	return &RoomView{
		Room:         room,
		DisplayName:  displayName(room, others, snapshots),
		Participants: snapshots,
	}
}

func displayName(room *domain.Room, others []string, snapshots map[string]domain.IdentitySnapshot) string {
	if room.Name != nil && *room.Name != "" {
		return *room.Name
	}
	if room.Type == domain.RoomDirect && len(others) == 1 {
		if snap, ok := snapshots[others[0]]; ok {
			return snap.DisplayName()
		}
	}
	switch room.Type {
	case domain.RoomTherapy:
		return "Therapy Session"
	case domain.RoomSupport:
		return "Support Group"
	default:
		return "Group Chat"
	}
}
