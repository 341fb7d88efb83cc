package collab

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
)

// NotificationClient submits notifications to the delivery service. Delivery
// mechanics (push, email) are entirely the collaborator's concern.
type NotificationClient struct {
	client
}

var _ domain.NotificationDispatcher = (*NotificationClient)(nil)

func NewNotificationClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *NotificationClient {
	return &NotificationClient{client: newClient(baseURL, timeout, logger.With().Str("collaborator", "notification").Logger())}
}

func (c *NotificationClient) Send(ctx context.Context, n domain.Notification) error {
	return c.doRequest(ctx, http.MethodPost, "/notifications", n, nil)
}

func (c *NotificationClient) SendBulk(ctx context.Context, ns []domain.Notification) error {
	return c.doRequest(ctx, http.MethodPost, "/notifications/bulk", map[string]any{"notifications": ns}, nil)
}
