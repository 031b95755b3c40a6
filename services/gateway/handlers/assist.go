// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP surface of the assistant gateway.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stationwise/stationwise/services/gateway/cards"
	"github.com/stationwise/stationwise/services/gateway/conversation"
	"github.com/stationwise/stationwise/services/gateway/datatypes"
	"github.com/stationwise/stationwise/services/gateway/intent"
	"github.com/stationwise/stationwise/services/gateway/middleware"
	"github.com/stationwise/stationwise/services/gateway/nodecontext"
	"github.com/stationwise/stationwise/services/gateway/observability"
	"github.com/stationwise/stationwise/services/gateway/provider"
	"github.com/stationwise/stationwise/services/gateway/ratelimit"
)

// RateChecker admits or rejects one request for a client key.
// *ratelimit.Limiter satisfies this.
type RateChecker interface {
	Check(key string) ratelimit.Result
}

// AssistantHandler serves GET /assistant.
//
// # Description
//
// One handler owns the whole pipeline: rate check, context build, intent
// classification, and dispatch to the tool, rule, or LLM branch. The tool
// and rule branches answer with a JSON card payload; the LLM branch opens
// an SSE stream through the configured provider.
//
// Provider may be nil when no AI backend is configured; the LLM branch
// then answers 501 while the card branches keep working.
type AssistantHandler struct {
	Limiter   RateChecker
	Builder   *nodecontext.Builder
	Tools     *cards.ToolResponder
	Provider  provider.Provider
	ConvStore conversation.Store

	// ProviderMisconfigured marks a deployment that selected an AI
	// provider but left out its credentials. With it set, the LLM branch
	// answers 500 CONFIG_ERROR instead of 501, so the operator error is
	// not mistaken for a deliberately disabled feature.
	ProviderMisconfigured bool

	tracer trace.Tracer
}

// NewAssistantHandler wires the handler. Builder, Tools and Limiter must be
// non-nil; Provider and ConvStore are optional.
func NewAssistantHandler(
	limiter RateChecker,
	builder *nodecontext.Builder,
	tools *cards.ToolResponder,
	p provider.Provider,
	convStore conversation.Store,
) *AssistantHandler {
	return &AssistantHandler{
		Limiter:   limiter,
		Builder:   builder,
		Tools:     tools,
		Provider:  p,
		ConvStore: convStore,
		tracer:    otel.Tracer("services/gateway/handlers"),
	}
}

// HandleAssist runs the assistant pipeline for one request.
func (h *AssistantHandler) HandleAssist(c *gin.Context) {
	requestID := uuid.New().String()
	ctx, span := h.tracer.Start(c.Request.Context(), "assistant.request")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	// Step 1: Validate parameters.
	req := datatypes.AssistRequest{
		Query:  strings.TrimSpace(c.Query("q")),
		NodeID: strings.TrimSpace(c.Query("node_id")),
		UserID: strings.TrimSpace(c.Query("user_id")),
	}
	if req.Query == "" {
		writeError(c, http.StatusBadRequest, datatypes.CodeInvalidParameter,
			"query parameter q is required", nil)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, datatypes.CodeInvalidParameter,
			"request failed validation", map[string]any{"reason": err.Error()})
		return
	}

	// Step 2: Resolve identity and check the rate limit.
	clientKey := middleware.ClientKey(c)
	span.SetAttributes(attribute.String("request.id", requestID))
	if res := h.Limiter.Check(clientKey); !res.OK {
		observability.DefaultMetrics.RecordRateLimited()
		c.Header("Retry-After", strconv.Itoa(res.RetryAfterSeconds))
		writeError(c, http.StatusTooManyRequests, datatypes.CodeRateLimited,
			"too many requests, slow down",
			map[string]any{"retry_after_seconds": res.RetryAfterSeconds})
		return
	}

	// Step 3: Build location context. Soft-fails to empty.
	nodeCtx := h.Builder.Build(ctx, req.NodeID, req.Query)
	observability.DefaultMetrics.RecordTrapWarnings(len(nodeCtx.Warnings))

	// Step 4: Classify and dispatch.
	classified := intent.Classify(req.Query)
	observability.DefaultMetrics.RecordIntent(string(classified))
	span.SetAttributes(
		attribute.String("assistant.intent", string(classified)),
		attribute.Bool("assistant.hasContext", !nodeCtx.Empty()),
	)

	switch {
	case classified == intent.IntentTool:
		payload := h.Tools.Respond(ctx, req.Query, req.NodeID)
		c.JSON(http.StatusOK, datatypes.FallbackResponse{
			Fallback: payload,
			Echo:     datatypes.Echo{Q: req.Query},
		})
		observability.DefaultMetrics.RecordRequest(observability.BranchTool, "success")

	case classified == intent.IntentRule && !nodeCtx.Empty():
		c.JSON(http.StatusOK, datatypes.FallbackResponse{
			Fallback: cards.RuleCards(nodeCtx.Warnings),
			Echo:     datatypes.Echo{Q: req.Query},
		})
		observability.DefaultMetrics.RecordRequest(observability.BranchRule, "success")

	default:
		// Rule intent without context falls through to the LLM.
		if h.Provider == nil {
			if h.ProviderMisconfigured {
				writeError(c, http.StatusInternalServerError, datatypes.CodeConfigError,
					"the selected AI provider is missing its configuration", nil)
			} else {
				writeError(c, http.StatusNotImplemented, datatypes.CodeNotImplemented,
					"no AI provider is configured", nil)
			}
			observability.DefaultMetrics.RecordRequest(observability.BranchLLM, "error")
			return
		}
		slog.Info("dispatching to AI provider",
			"requestId", requestID,
			"provider", h.Provider.Name(),
			"clientKey", clientKey,
			"nodeId", req.NodeID,
		)
		h.streamLLM(c, req, nodeCtx, clientKey)
	}
}
