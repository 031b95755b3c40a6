// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stationwise/stationwise/services/gateway/datatypes"
	"github.com/stationwise/stationwise/services/gateway/nodecontext"
	"github.com/stationwise/stationwise/services/gateway/observability"
	"github.com/stationwise/stationwise/services/gateway/provider"
)

// keepAliveInterval paces SSE comments while the upstream is quiet.
const keepAliveInterval = 15 * time.Second

// streamLLM runs the LLM branch: it resumes the client's upstream
// conversation, relays normalized provider events as SSE message frames,
// and closes with exactly one done frame.
//
// The connect phase is separate from the relay. While the provider is
// still connecting, nothing has been written, so a provider that cannot be
// reached at all gets a regular 502 JSON envelope. The moment the upstream
// accepts the request the SSE response starts: the alerts frame (when trap
// warnings exist) goes out immediately, before the model's first token,
// and keepalives cover any silence after that. Once streaming has begun,
// upstream failures are logged and the stream still terminates with its
// done frame.
//
// Conversation ids reported by the upstream are persisted last-write-wins
// under the client key.
func (h *AssistantHandler) streamLLM(c *gin.Context, req datatypes.AssistRequest, nodeCtx nodecontext.Context, clientKey string) {
	ctx := c.Request.Context()
	providerName := h.Provider.Name()

	writer, err := NewEventWriter(c.Writer)
	if err != nil {
		writeError(c, http.StatusInternalServerError, datatypes.CodeInternalError,
			"streaming is not supported by this connection", nil)
		observability.DefaultMetrics.RecordRequest(observability.BranchLLM, "error")
		return
	}

	var convID string
	if h.ConvStore != nil {
		convID, _ = h.ConvStore.Get(clientKey)
	}

	chatReq := provider.ChatRequest{
		Query:          req.Query,
		Context:        nodeCtx.Text,
		ConversationID: convID,
		User:           clientKey,
	}

	start := time.Now()
	stream, err := h.Provider.Open(ctx, chatReq)
	if err != nil {
		// The upstream never accepted the request; a clean error response
		// is still possible.
		slog.Error("provider unreachable",
			"provider", providerName,
			"error", err,
		)
		writeError(c, http.StatusBadGateway, datatypes.CodeUpstreamError,
			"the assistant is temporarily unavailable", nil)
		observability.DefaultMetrics.RecordRequest(observability.BranchLLM, "error")
		return
	}
	defer stream.Close()

	// Connected: commit the SSE response now so safety warnings reach the
	// client even when the model is slow or silent.
	writer.Start()
	observability.DefaultMetrics.StreamStarted(providerName)
	observability.DefaultMetrics.RecordTimeToFirstEvent(providerName, time.Since(start).Seconds())

	if len(nodeCtx.Warnings) > 0 {
		if err := writer.WriteEvent(datatypes.AlertsEvent(nodeCtx.Warnings)); err != nil {
			slog.Debug("alerts frame not delivered", "error", err)
		}
	}

	heartbeatDone := make(chan struct{})
	var heartbeatOnce sync.Once
	stopHeartbeat := func() { heartbeatOnce.Do(func() { close(heartbeatDone) }) }
	defer stopHeartbeat()

	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatDone:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}
			}
		}
	}()

	streamErr := stream.Relay(func(ev provider.Event) error {
		if ev.ConversationID != "" && h.ConvStore != nil {
			h.ConvStore.Set(clientKey, ev.ConversationID)
		}
		if ev.Content == "" {
			return nil
		}
		return writer.WriteEvent(datatypes.MessageEvent(ev.Content))
	})

	status := "success"
	if streamErr != nil {
		status = "error"
		if ctx.Err() != nil {
			slog.Info("client disconnected mid-stream",
				"provider", providerName,
				"clientKey", clientKey,
			)
		} else {
			slog.Warn("stream interrupted, terminating with done frame",
				"provider", providerName,
				"error", streamErr,
			)
		}
	}

	// The stream contract: alerts (if any) came first, and exactly one
	// done frame closes it, even when the upstream produced nothing.
	stopHeartbeat()
	if err := writer.WriteEvent(datatypes.DoneEvent()); err != nil {
		slog.Debug("done frame not delivered", "error", err)
	}

	observability.DefaultMetrics.StreamEnded(providerName)
	observability.DefaultMetrics.RecordStreamDuration(providerName, status, time.Since(start).Seconds())
	observability.DefaultMetrics.RecordRequest(observability.BranchLLM, status)
}
