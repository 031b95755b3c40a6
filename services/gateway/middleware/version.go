// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/stationwise/stationwise/services/gateway/datatypes"
)

// APIVersion stamps the contract version header on every response,
// including errors, before any handler writes.
func APIVersion() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", datatypes.APIVersion)
		c.Next()
	}
}
