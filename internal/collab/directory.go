package collab

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
)

// DirectoryClient resolves principal ids against the principal directory.
type DirectoryClient struct {
	client
}

var _ domain.PrincipalDirectory = (*DirectoryClient)(nil)

func NewDirectoryClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *DirectoryClient {
	return &DirectoryClient{client: newClient(baseURL, timeout, logger.With().Str("collaborator", "directory").Logger())}
}

func (c *DirectoryClient) Validate(ctx context.Context, id string) (*domain.DirectoryEntry, error) {
	var resp domain.DirectoryEntry
	if err := c.doRequest(ctx, http.MethodGet, "/principals/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
