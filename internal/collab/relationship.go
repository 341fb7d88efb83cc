package collab

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
)

// RelationshipClient talks to the relationship service: social-graph edge
// checks, therapist-client engagement checks, and identity/pseudonym lookups.
type RelationshipClient struct {
	client
}

var _ domain.RelationshipService = (*RelationshipClient)(nil)

func NewRelationshipClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *RelationshipClient {
	return &RelationshipClient{client: newClient(baseURL, timeout, logger.With().Str("collaborator", "relationship").Logger())}
}

type edgeCheckResponse struct {
	Valid bool `json:"valid"`
}

func (c *RelationshipClient) ValidateMutualFollow(ctx context.Context, idA, idB string) (bool, error) {
	var resp edgeCheckResponse
	path := "/relationships/mutual-follow?a=" + url.QueryEscape(idA) + "&b=" + url.QueryEscape(idB)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

func (c *RelationshipClient) CheckTherapySessionAccess(ctx context.Context, therapistID, clientID string) (bool, error) {
	var resp edgeCheckResponse
	path := "/relationships/therapist-client?therapist=" + url.QueryEscape(therapistID) + "&client=" + url.QueryEscape(clientID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

func (c *RelationshipClient) GetIdentity(ctx context.Context, subjectID, viewerID string) (*domain.Identity, error) {
	var resp domain.Identity
	path := "/identities/" + url.PathEscape(subjectID) + "?viewer=" + url.QueryEscape(viewerID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RelationshipClient) NotifyRoomCreated(ctx context.Context, roomID string, participantIDs []string) error {
	body := map[string]any{
		"room_id":         roomID,
		"participant_ids": participantIDs,
	}
	return c.doRequest(ctx, http.MethodPost, "/relationships/room-created", body, nil)
}
