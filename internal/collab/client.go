// Package collab contains HTTP clients for the external collaborators the
// chat core depends on: the relationship service, the media-routing service,
// the principal directory, and the notification dispatcher. Each client maps
// transport failures and 5xx responses onto domain.ErrUpstream; the core never
// retries, that is the caller's or a gateway's job.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
)

type client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func newClient(baseURL string, timeout time.Duration, logger zerolog.Logger) client {
	return client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// doRequest executes a JSON request against the collaborator and decodes the
// response into out when out is non-nil. A timeout or 5xx is reported as
// domain.ErrUpstream; a 404 as domain.ErrNotFound.
func (c *client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("collaborator request failed")
		return fmt.Errorf("%w: %s %s: %v", domain.ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrUpstream, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode >= 500:
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("collaborator returned server error")
		return fmt.Errorf("%w: %s %s: status %d", domain.ErrUpstream, method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: %s %s: status %d: %s", domain.ErrValidation, method, path, resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", domain.ErrUpstream, err)
		}
	}
	return nil
}
