// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stationwise/stationwise/services/gateway/observability"
)

// DifyWorkflow calls a Dify workflow webhook that answers in one blocking
// JSON response. The single answer is re-framed as one content event so the
// caller streams it exactly like the chat variants.
type DifyWorkflow struct {
	endpoint string
	apiKey   string
	client   *http.Client
	retry    Policy
}

// NewDifyWorkflow builds an adapter for the workflow webhook at endpoint.
func NewDifyWorkflow(endpoint, apiKey string) *DifyWorkflow {
	w := &DifyWorkflow{
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
		client:   &http.Client{Timeout: 60 * time.Second},
		retry:    DefaultPolicy(),
	}
	w.retry.OnRetry = func() {
		observability.DefaultMetrics.RecordProviderRetry(w.Name())
	}
	return w
}

// Name implements Provider.
func (w *DifyWorkflow) Name() string { return "dify-workflow" }

type workflowPayload struct {
	Inputs       map[string]string `json:"inputs"`
	ResponseMode string            `json:"response_mode"`
	User         string            `json:"user"`
}

type workflowResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	Data           struct {
		Outputs struct {
			Answer string `json:"answer"`
		} `json:"outputs"`
	} `json:"data"`
}

// Open implements Provider. The webhook is blocking, so the whole upstream
// call happens here; the returned stream just replays the single answer.
func (w *DifyWorkflow) Open(ctx context.Context, req ChatRequest) (Stream, error) {
	inputs := map[string]string{"query": req.Query}
	if req.Context != "" {
		inputs["context"] = req.Context
	}
	body, err := json.Marshal(workflowPayload{
		Inputs:       inputs,
		ResponseMode: "blocking",
		User:         req.User,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal workflow payload: %w", err)
	}

	var parsed workflowResponse
	err = WithRetry(ctx, w.retry, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build workflow request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if w.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+w.apiKey)
		}

		resp, err := w.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("call workflow: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("workflow returned status %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode workflow response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dify workflow: %w", err)
	}

	answer := parsed.Answer
	if answer == "" {
		answer = parsed.Data.Outputs.Answer
	}
	return &workflowStream{
		event: Event{Content: answer, ConversationID: parsed.ConversationID},
	}, nil
}

// workflowStream replays the one answer of a blocking workflow call.
type workflowStream struct {
	event Event
}

// Relay implements Stream.
func (s *workflowStream) Relay(h StreamHandler) error {
	return h(s.event)
}

// Close implements Stream.
func (s *workflowStream) Close() error {
	return nil
}
