package collab

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
)

// MediaClient is the control-plane client for the media-routing service (SFU).
// The chat core forwards transport/produce/consume requests verbatim and keeps
// no media state of its own.
type MediaClient struct {
	client
}

var _ domain.MediaRoutingService = (*MediaClient)(nil)

func NewMediaClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *MediaClient {
	return &MediaClient{client: newClient(baseURL, timeout, logger.With().Str("collaborator", "media-routing").Logger())}
}

func (c *MediaClient) CreateSession(ctx context.Context, participantIDs []string, callType domain.CallType, metadata map[string]string) (*domain.MediaSession, error) {
	body := map[string]any{
		"participant_ids": participantIDs,
		"call_type":       callType,
		"metadata":        metadata,
	}
	var resp domain.MediaSession
	if err := c.doRequest(ctx, http.MethodPost, "/sessions", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *MediaClient) Join(ctx context.Context, sessionID, userID string, capabilities map[string]any) (domain.ConnectionDescriptor, error) {
	body := map[string]any{
		"user_id":      userID,
		"capabilities": capabilities,
	}
	var resp domain.ConnectionDescriptor
	if err := c.doRequest(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/join", body, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *MediaClient) End(ctx context.Context, sessionID, endedBy string) error {
	body := map[string]any{"ended_by": endedBy}
	return c.doRequest(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/end", body, nil)
}

func (c *MediaClient) CreateTransport(ctx context.Context, sessionID, userID string, params map[string]any) (map[string]any, error) {
	return c.forward(ctx, sessionID, userID, "transports", params)
}

func (c *MediaClient) Produce(ctx context.Context, sessionID, userID string, params map[string]any) (map[string]any, error) {
	return c.forward(ctx, sessionID, userID, "produce", params)
}

func (c *MediaClient) Consume(ctx context.Context, sessionID, userID string, params map[string]any) (map[string]any, error) {
	return c.forward(ctx, sessionID, userID, "consume", params)
}

func (c *MediaClient) forward(ctx context.Context, sessionID, userID, op string, params map[string]any) (map[string]any, error) {
	body := map[string]any{
		"user_id": userID,
		"params":  params,
	}
	var resp map[string]any
	if err := c.doRequest(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/"+op, body, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}
