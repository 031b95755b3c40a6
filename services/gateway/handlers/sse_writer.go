// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/stationwise/stationwise/services/gateway/datatypes"
)

// EventWriter serializes assistant stream events onto an SSE response.
//
// # Description
//
// Frames are written as `data: <json>\n\n` with an immediate flush so
// proxies and clients see each event as it happens. The handler calls
// Start once the upstream has accepted the request; until then nothing is
// written, so a connect failure can still get a JSON error response. The
// first write also starts the response as a guard.
//
// # Thread Safety
//
// All writes are serialized by an internal mutex; the keepalive goroutine
// and the stream loop share one writer safely.
type EventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	started bool
}

// NewEventWriter wraps a response writer. Returns an error when the
// underlying writer cannot flush, since buffered SSE is useless.
func NewEventWriter(w http.ResponseWriter) (*EventWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &EventWriter{w: w, flusher: flusher}, nil
}

// Start sets the SSE headers. Called implicitly by the first write;
// idempotent.
func (ew *EventWriter) Start() {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	ew.startLocked()
}

func (ew *EventWriter) startLocked() {
	if ew.started {
		return
	}
	ew.started = true
	header := ew.w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	// Disables proxy buffering on nginx-style frontends.
	header.Set("X-Accel-Buffering", "no")
	ew.w.WriteHeader(http.StatusOK)
	ew.flusher.Flush()
}

// WriteEvent frames and flushes one stream event.
func (ew *EventWriter) WriteEvent(ev datatypes.StreamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}

	ew.mu.Lock()
	defer ew.mu.Unlock()
	ew.startLocked()

	if _, err := fmt.Fprintf(ew.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write stream event: %w", err)
	}
	ew.flusher.Flush()
	return nil
}

// WriteKeepAlive sends an SSE comment so idle connections stay open
// through load balancers.
func (ew *EventWriter) WriteKeepAlive() error {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	if !ew.started {
		return nil
	}
	if _, err := fmt.Fprint(ew.w, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	ew.flusher.Flush()
	return nil
}
