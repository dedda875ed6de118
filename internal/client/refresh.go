package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"subsbuzz-client-go/internal/apierr"
	"subsbuzz-client-go/internal/auth"
)

// refreshTokens is the refresh transport call handed to the Refresher. It is
// deliberately not routed through Execute: a refresh must never trigger
// another refresh, and it follows its own single-attempt policy.
func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("failed to encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(payload))
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyCap))
		io.Copy(io.Discard, resp.Body)
		return auth.TokenPair{}, apierr.FromResponse(resp.StatusCode, slurp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("failed to read refresh response: %w", err)
	}

	var pair auth.TokenPair
	if err := decodePayload(raw, &pair); err != nil {
		return auth.TokenPair{}, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	return pair, nil
}
