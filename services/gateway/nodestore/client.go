// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package nodestore is a thin HTTP client for the place/node catalog
// service. The gateway fetches one record per request; there is no caching
// here, the catalog sits behind its own cache.
package nodestore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stationwise/stationwise/services/gateway/datatypes"
)

const defaultTimeout = 3 * time.Second

// Client fetches node records over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a client for the catalog at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// Get fetches the node record by id. A 404 or any transport failure comes
// back as an error; callers treat all errors as "no context available".
func (c *Client) Get(ctx context.Context, nodeID string) (*datatypes.NodeRecord, error) {
	endpoint := fmt.Sprintf("%s/nodes/%s", c.baseURL, url.PathEscape(nodeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build node request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch node %s: %w", nodeID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("node store returned status %d for %s", resp.StatusCode, nodeID)
	}

	var record datatypes.NodeRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("decode node %s: %w", nodeID, err)
	}
	if record.ID == "" {
		record.ID = nodeID
	}
	return &record, nil
}
