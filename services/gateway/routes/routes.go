// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the gateway's HTTP surface.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/stationwise/stationwise/services/gateway/handlers"
	"github.com/stationwise/stationwise/services/gateway/middleware"
)

// SetupRoutes registers all endpoints and the shared middleware chain.
// verifier may be nil when no auth service is configured.
func SetupRoutes(router *gin.Engine, h *handlers.AssistantHandler, verifier middleware.TokenVerifier) {
	router.Use(
		otelgin.Middleware("assistant-gateway"),
		middleware.APIVersion(),
		middleware.Identity(verifier),
	)

	router.GET("/assistant", h.HandleAssist)
	router.GET("/health", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
