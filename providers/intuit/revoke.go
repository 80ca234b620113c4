package intuit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-quickbooks/core"
)

// Revoke invalidates a refresh or access token at Intuit. Revoking a refresh
// token also revokes the access tokens issued from it.
func (c *Client) Revoke(ctx context.Context, token string) error {
	if c == nil {
		return fmt.Errorf("intuit: client is nil")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("intuit: token is required")
	}
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return fmt.Errorf("intuit: encode revoke request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("intuit: build revoke request: %w", err)
	}
	req.SetBasicAuth(c.oauth.ClientID, c.oauth.ClientSecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return c.classify(err, "revoke token")
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<16))

	if res.StatusCode >= http.StatusInternalServerError {
		return core.NewTransportError(fmt.Errorf("intuit: revoke endpoint status %d", res.StatusCode), "revoke token")
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("intuit: revoke rejected with status %d", res.StatusCode)
	}
	return nil
}

var _ core.TokenRevoker = (*Client)(nil)
