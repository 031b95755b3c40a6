// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stationwise/stationwise/services/gateway/observability"
)

// scannerBufferSize bounds one SSE line from the upstream; agent answers
// can carry long single-line deltas.
const scannerBufferSize = 1024 * 1024

// DifyChat streams answers from a Dify-compatible chat-messages endpoint.
//
// # Description
//
// Connects with response_mode=streaming and relays the upstream SSE frames:
// message and agent_message frames become content events, message_end
// carries the conversation id, error frames are logged and dropped, and
// unparseable lines are skipped. Connect failures and non-2xx statuses are
// retried per the policy; once bytes are flowing no retry happens.
type DifyChat struct {
	baseURL string
	apiKey  string
	client  *http.Client
	retry   Policy
}

// NewDifyChat builds an adapter for the Dify API rooted at baseURL
// (".../v1"). The HTTP client timeout covers only connect and response
// headers; the body read runs until the stream or the context ends.
func NewDifyChat(baseURL, apiKey string) *DifyChat {
	d := &DifyChat{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: 30 * time.Second},
		},
		retry: DefaultPolicy(),
	}
	d.retry.OnRetry = func() {
		observability.DefaultMetrics.RecordProviderRetry(d.Name())
	}
	return d
}

// Name implements Provider.
func (d *DifyChat) Name() string { return "dify-chat" }

type difyChatPayload struct {
	Inputs           map[string]string `json:"inputs"`
	Query            string            `json:"query"`
	ResponseMode     string            `json:"response_mode"`
	ConversationID   string            `json:"conversation_id,omitempty"`
	User             string            `json:"user"`
	AutoGenerateName bool              `json:"auto_generate_name"`
}

type difyFrame struct {
	Event          string `json:"event"`
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// Open implements Provider. It POSTs the chat request and returns once the
// upstream has answered with a streamable 2xx response.
func (d *DifyChat) Open(ctx context.Context, req ChatRequest) (Stream, error) {
	inputs := map[string]string{}
	if req.Context != "" {
		inputs["context"] = req.Context
	}
	payload := difyChatPayload{
		Inputs:         inputs,
		Query:          req.Query,
		ResponseMode:   "streaming",
		ConversationID: req.ConversationID,
		User:           req.User,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	var resp *http.Response
	err = WithRetry(ctx, d.retry, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			d.baseURL+"/chat-messages", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build chat request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

		r, err := d.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("connect chat stream: %w", err)
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			drainAndClose(r.Body)
			return fmt.Errorf("chat endpoint returned status %d", r.StatusCode)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dify chat: %w", err)
	}
	return &difyStream{chat: d, ctx: ctx, body: resp.Body}, nil
}

// difyStream is one open chat-messages response.
type difyStream struct {
	chat *DifyChat
	ctx  context.Context
	body io.ReadCloser
}

// Relay implements Stream.
func (s *difyStream) Relay(h StreamHandler) error {
	return s.chat.relay(s.ctx, s.body, h)
}

// Close implements Stream.
func (s *difyStream) Close() error {
	return s.body.Close()
}

// relay reads upstream SSE lines and hands normalized events to h.
func (d *DifyChat) relay(ctx context.Context, body io.Reader, h StreamHandler) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), scannerBufferSize)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		raw := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if raw == "" {
			continue
		}

		var frame difyFrame
		if err := json.Unmarshal([]byte(raw), &frame); err != nil {
			slog.Debug("skipping unparseable upstream frame", "error", err)
			continue
		}

		switch frame.Event {
		case "message", "agent_message":
			if err := h(Event{Content: frame.Answer, ConversationID: frame.ConversationID}); err != nil {
				return err
			}
		case "error":
			slog.Warn("upstream reported stream error",
				"provider", d.Name(),
				"message", frame.Message,
			)
		default:
			if frame.ConversationID != "" {
				if err := h(Event{ConversationID: frame.ConversationID}); err != nil {
					return err
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read chat stream: %w", err)
	}
	return nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
