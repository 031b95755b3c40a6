// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package facilities is the HTTP client for the facilities aggregator,
// which merges live transit status, shared-bike availability, and nearby
// facility listings into one response.
package facilities

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 3 * time.Second

// Transit status values reported by the aggregator.
const (
	TransitNormal    = "normal"
	TransitDelayed   = "delayed"
	TransitSuspended = "suspended"
)

// Aggregate is the merged payload from GET /aggregate.
type Aggregate struct {
	Live       Live       `json:"live"`
	Facilities []Facility `json:"facilities"`
}

// Live groups the real-time feeds.
type Live struct {
	Transit  Transit           `json:"transit"`
	Mobility []MobilityStation `json:"mobility"`
}

// Transit is the headline service status for lines serving the node.
type Transit struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// MobilityStation is one shared-bike dock near the node.
type MobilityStation struct {
	Name           string `json:"name"`
	AvailableBikes int    `json:"available_bikes"`
}

// Facility is one nearby amenity with free-form tags ("toilet", "wifi",
// "charging", ...).
type Facility struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// HasTag reports whether the facility carries the tag, case-insensitively.
func (f Facility) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Client calls the facilities aggregator.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a client for the aggregator at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// Aggregate fetches the merged facility picture around a node. limit bounds
// the facility listing; 0 lets the aggregator choose.
func (c *Client) Aggregate(ctx context.Context, nodeID string, limit int) (*Aggregate, error) {
	q := url.Values{}
	if nodeID != "" {
		q.Set("node_id", nodeID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := c.baseURL + "/aggregate"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build aggregate request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch aggregate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("facilities aggregator returned status %d", resp.StatusCode)
	}

	var agg Aggregate
	if err := json.NewDecoder(resp.Body).Decode(&agg); err != nil {
		return nil, fmt.Errorf("decode aggregate: %w", err)
	}
	return &agg, nil
}
