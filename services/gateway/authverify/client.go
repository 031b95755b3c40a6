// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package authverify resolves auth tokens to user ids via the account
// service. The gateway treats every failure as "unauthenticated" and moves
// on; identity only selects the rate-limit key and conversation thread.
package authverify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 2 * time.Second

// Client verifies tokens against the account service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a verifier for the account service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// Verify exchanges a token for the user id it belongs to. Any non-200
// response or transport error is returned as an error; callers degrade to
// anonymous identity.
func (c *Client) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/verify", nil)
	if err != nil {
		return "", fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode verify response: %w", err)
	}
	if body.UserID == "" {
		return "", fmt.Errorf("auth service returned empty user id")
	}
	return body.UserID, nil
}
