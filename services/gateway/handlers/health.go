// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stationwise/stationwise/services/gateway/datatypes"
)

// HandleHealth reports liveness and which AI provider is wired, so
// deploy checks can tell a card-only gateway from a fully configured one.
func (h *AssistantHandler) HandleHealth(c *gin.Context) {
	providerName := "none"
	if h.Provider != nil {
		providerName = h.Provider.Name()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"provider": providerName,
		"version":  datatypes.APIVersion,
	})
}
