// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package provider adapts upstream AI backends to one normalized streaming
// protocol. Connect and relay are separate phases: Open reaches the backend
// (with retry) and Relay reads its response, handing normalized events to
// the caller in upstream order. The split lets callers commit their own
// response as soon as the upstream has accepted the request, before the
// model produces its first token.
package provider

import "context"

// ChatRequest carries one assistant turn to an upstream backend.
type ChatRequest struct {
	// Query is the raw user utterance.
	Query string
	// Context is the location system prompt; empty means no injection.
	Context string
	// ConversationID resumes an upstream thread when the backend supports
	// server-side state. Empty starts a fresh conversation.
	ConversationID string
	// User identifies the caller for upstream attribution.
	User string
}

// Event is one normalized upstream occurrence. Content carries assistant
// text when non-empty; ConversationID carries the upstream thread id when
// the backend reported one. Either field may be empty.
type Event struct {
	Content        string
	ConversationID string
}

// StreamHandler receives events in upstream order. Returning an error stops
// the relay; adapters propagate it unchanged.
type StreamHandler func(Event) error

// Provider is one upstream AI backend.
type Provider interface {
	// Name identifies the adapter in logs and metrics.
	Name() string
	// Open starts one turn. It connects to the backend, retrying per the
	// adapter's policy, and returns once the upstream has accepted the
	// request. An error means the backend could not be reached at all.
	Open(ctx context.Context, req ChatRequest) (Stream, error)
}

// Stream is one accepted upstream turn, ready to be read.
type Stream interface {
	// Relay delivers events via h until the upstream response ends. An
	// error means the stream was cut mid-response; events already handed
	// to h stand.
	Relay(h StreamHandler) error
	// Close releases the upstream connection. Safe after Relay returns
	// and safe to call when Relay never ran.
	Close() error
}
