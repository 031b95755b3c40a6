// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/stationwise/stationwise/services/gateway/datatypes"
	"github.com/stationwise/stationwise/services/gateway/observability"
)

// writeError emits the uniform error envelope and records the error metric.
// details may be nil.
func writeError(c *gin.Context, status int, code, message string, details map[string]any) {
	observability.DefaultMetrics.RecordError(code)
	c.JSON(status, datatypes.NewErrorResponse(code, message, details))
}
