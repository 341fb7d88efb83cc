package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/rs/zerolog"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/metrics"
)

// IdentityResolver computes the display identity of a subject as seen by a
// viewer in a given room type. Pseudonyms come from the relationship
// collaborator's stable assignment; real names are surfaced only when the
// subject's preference and the room type both allow it.
type IdentityResolver struct {
	relationships domain.RelationshipService
	logger        zerolog.Logger
}

func NewIdentityResolver(relationships domain.RelationshipService, logger zerolog.Logger) *IdentityResolver {
	return &IdentityResolver{
		relationships: relationships,
		logger:        logger.With().Str("component", "identity-resolver").Logger(),
	}
}

// realNameRoomTypes are the only room types where a real name may ever be
// shown. Group and support rooms stay pseudonymous regardless of preference.
func realNameAllowedIn(roomType domain.RoomType) bool {
	return roomType == domain.RoomDirect || roomType == domain.RoomTherapy
}

// Resolve returns the identity snapshot for a subject. An upstream failure
// degrades silently to anonymous-only; a partial or stale real name is never
// surfaced.
func (r *IdentityResolver) Resolve(ctx context.Context, subjectID, viewerID string, roomType domain.RoomType) domain.IdentitySnapshot {
	snapshot := domain.IdentitySnapshot{
		SubjectID:            subjectID,
		AnonymousDisplayName: fallbackPseudonym(subjectID),
	}

	identity, err := r.relationships.GetIdentity(ctx, subjectID, viewerID)
	if err != nil {
		metrics.IdentityLookupFailures.Inc()
		r.logger.Debug().Err(err).Str("subject", subjectID).Msg("identity lookup degraded to anonymous")
		return snapshot
	}
	if identity.AnonymousName != "" {
		snapshot.AnonymousDisplayName = identity.AnonymousName
	}
	if identity.RealNameIfAllowed != nil && *identity.RealNameIfAllowed != "" && realNameAllowedIn(roomType) {
		snapshot.RealName = identity.RealNameIfAllowed
		snapshot.AllowRealNameInChat = true
	}
	return snapshot
}

// ResolveMany fans out one lookup per subject and fans in the results. A
// failed lookup degrades only that subject; it never cancels the others.
func (r *IdentityResolver) ResolveMany(ctx context.Context, subjectIDs []string, viewerID string, roomType domain.RoomType) map[string]domain.IdentitySnapshot {
	results := make([]domain.IdentitySnapshot, len(subjectIDs))
	var wg sync.WaitGroup
	for i, id := range subjectIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = r.Resolve(ctx, id, viewerID, roomType)
		}(i, id)
	}
	wg.Wait()

	out := make(map[string]domain.IdentitySnapshot, len(subjectIDs))
	for _, s := range results {
		out[s.SubjectID] = s
	}
	return out
}

// fallbackPseudonym derives a deterministic placeholder name for when even the
// pseudonym lookup fails. Stable per subject so repeated reads agree.
func fallbackPseudonym(subjectID string) string {
	sum := sha256.Sum256([]byte(subjectID))
	return "Member-" + hex.EncodeToString(sum[:4])
}
