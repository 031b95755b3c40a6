// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func difyTestServer(t *testing.T, frames []string, failures *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat-messages", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if failures != nil && failures.Add(-1) >= 0 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprintf(w, "%s\n\n", frame)
			flusher.Flush()
		}
	}))
}

func collect(t *testing.T, p Provider, req ChatRequest) ([]Event, error) {
	t.Helper()
	stream, err := p.Open(context.Background(), req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var events []Event
	err = stream.Relay(func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}

func TestDifyChatNormalizesFrames(t *testing.T) {
	frames := []string{
		`data: {"event":"message","answer":"東京","conversation_id":"conv-xyz"}`,
		`data: {"event":"agent_message","answer":"車站很大"}`,
		`this line is not sse and gets skipped`,
		`data: {not json`,
		`data: {"event":"error","message":"model overloaded"}`,
		`data: {"event":"message_end","conversation_id":"conv-xyz"}`,
	}
	srv := difyTestServer(t, frames, nil)
	defer srv.Close()

	p := NewDifyChat(srv.URL, "test-key")
	events, err := collect(t, p, ChatRequest{Query: "hi", User: "u1"})
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, "東京", events[0].Content)
	assert.Equal(t, "conv-xyz", events[0].ConversationID)
	assert.Equal(t, "車站很大", events[1].Content)
	assert.Equal(t, "", events[2].Content)
	assert.Equal(t, "conv-xyz", events[2].ConversationID)
}

func TestDifyChatRetriesConnectFailures(t *testing.T) {
	var failures atomic.Int32
	failures.Store(2)
	srv := difyTestServer(t, []string{`data: {"event":"message","answer":"ok"}`}, &failures)
	defer srv.Close()

	p := NewDifyChat(srv.URL, "test-key")
	p.retry = fastPolicy(3)

	events, err := collect(t, p, ChatRequest{Query: "hi"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Content)
}

func TestDifyChatExhaustedRetriesReturnError(t *testing.T) {
	var failures atomic.Int32
	failures.Store(10)
	srv := difyTestServer(t, nil, &failures)
	defer srv.Close()

	p := NewDifyChat(srv.URL, "test-key")
	p.retry = fastPolicy(2)

	events, err := collect(t, p, ChatRequest{Query: "hi"})
	assert.Error(t, err)
	assert.Empty(t, events)
}

func TestDifyChatSendsConversationID(t *testing.T) {
	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody.Store(string(data))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"event\":\"message\",\"answer\":\"hi\"}\n\n")
	}))
	defer srv.Close()

	p := NewDifyChat(srv.URL, "k")
	_, err := collect(t, p, ChatRequest{Query: "again", ConversationID: "conv-xyz", User: "u1"})
	require.NoError(t, err)

	body, _ := gotBody.Load().(string)
	assert.Contains(t, body, `"conversation_id":"conv-xyz"`)
	assert.Contains(t, body, `"response_mode":"streaming"`)
}

func TestDifyChatStopsOnHandlerError(t *testing.T) {
	frames := []string{
		`data: {"event":"message","answer":"one"}`,
		`data: {"event":"message","answer":"two"}`,
	}
	srv := difyTestServer(t, frames, nil)
	defer srv.Close()

	p := NewDifyChat(srv.URL, "test-key")
	stream, err := p.Open(context.Background(), ChatRequest{Query: "hi"})
	require.NoError(t, err)
	defer stream.Close()

	stop := fmt.Errorf("client went away")
	count := 0
	err = stream.Relay(func(Event) error {
		count++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, count)
}

func TestWorkflowReframesSingleAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"outputs":{"answer":"單一回覆"}},"conversation_id":"conv-wf"}`)
	}))
	defer srv.Close()

	p := NewDifyWorkflow(srv.URL, "k")
	events, err := collect(t, p, ChatRequest{Query: "hi"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "單一回覆", events[0].Content)
	assert.Equal(t, "conv-wf", events[0].ConversationID)
}

func TestWorkflowRetriesThenSucceeds(t *testing.T) {
	var failures atomic.Int32
	failures.Store(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures.Add(-1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"answer":"ok"}`)
	}))
	defer srv.Close()

	p := NewDifyWorkflow(srv.URL, "k")
	p.retry = fastPolicy(2)

	start := time.Now()
	events, err := collect(t, p, ChatRequest{Query: "hi"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Content)
	assert.Less(t, time.Since(start), 5*time.Second)
}
