// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the wire types for the assistant gateway: the
// inbound request, the SSE stream envelope, the card-based fallback payload,
// and the error envelope shared by every endpoint.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// APIVersion is stamped on every response via the X-API-Version header so
// clients can detect contract changes without parsing bodies.
const APIVersion = "1"

var assistValidate *validator.Validate

func init() {
	assistValidate = validator.New()
}

// AssistRequest is the query-string surface of GET /assistant.
//
// # Description
//
// All parameters arrive in the query string; the bearer token, when present,
// arrives in the Authorization header and is resolved by middleware before
// the handler runs. Only Query is mandatory.
//
// # Fields
//
//   - Query: the user utterance. Required, bounded to keep prompts sane.
//   - NodeID: station/place identifier for context injection. Optional.
//   - UserID: caller-asserted identity, untrusted. Optional.
//   - Token: legacy query-string auth token. Optional.
type AssistRequest struct {
	Query  string `form:"q" json:"q" validate:"required,max=2000"`
	NodeID string `form:"node_id" json:"node_id" validate:"omitempty,max=128"`
	UserID string `form:"user_id" json:"user_id" validate:"omitempty,max=128"`
	Token  string `form:"token" json:"-" validate:"omitempty,max=512"`
}

// Validate checks the request against its struct tags.
func (r *AssistRequest) Validate() error {
	if err := assistValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid assist request: %w", err)
	}
	return nil
}

// EventType discriminates frames in the assistant SSE stream.
type EventType string

const (
	EventMessage EventType = "message"
	EventAlerts  EventType = "alerts"
	EventDone    EventType = "done"
)

// StreamEvent is the envelope for one SSE data frame.
//
// Content holds a string for message frames and a list of strings for alerts
// frames; done frames omit it entirely.
type StreamEvent struct {
	Role    string    `json:"role"`
	Type    EventType `json:"type"`
	Content any       `json:"content,omitempty"`
}

// MessageEvent frames one chunk of assistant text.
func MessageEvent(content string) StreamEvent {
	return StreamEvent{Role: "ai", Type: EventMessage, Content: content}
}

// AlertsEvent frames the trap warnings that precede any assistant text.
func AlertsEvent(warnings []string) StreamEvent {
	return StreamEvent{Role: "ai", Type: EventAlerts, Content: warnings}
}

// DoneEvent frames the terminal marker of a stream.
func DoneEvent() StreamEvent {
	return StreamEvent{Role: "ai", Type: EventDone}
}

// Card is a single suggestion rendered by the client.
type Card struct {
	Title string `json:"title"`
	Desc  string `json:"desc"`
}

// FallbackPayload groups the primary card and its supporting cards.
type FallbackPayload struct {
	Primary   Card   `json:"primary"`
	Secondary []Card `json:"secondary"`
}

// FallbackResponse is the JSON body for the tool and rule branches.
type FallbackResponse struct {
	Fallback FallbackPayload `json:"fallback"`
	Echo     Echo            `json:"echo"`
}

// Echo reflects the query back so clients can correlate responses.
type Echo struct {
	Q string `json:"q"`
}
