// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware contains the gin middleware of the assistant gateway.
package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
)

// clientKeyKey is the gin context key holding the resolved client identity.
const clientKeyKey = "stationwise.clientKey"

// authenticatedKey marks requests whose token verified successfully.
const authenticatedKey = "stationwise.authenticated"

// AnonymousKey is the identity of callers with nothing to identify them.
const AnonymousKey = "anonymous"

// TokenVerifier resolves an auth token to a user id. *authverify.Client
// satisfies this.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Identity resolves the client key used for rate limiting and conversation
// threading.
//
// # Description
//
// The chain, most to least trusted: verified bearer token from the
// Authorization header, verified legacy `token` query parameter, the raw
// `user_id` query parameter (caller-asserted, untrusted), the client IP,
// and finally the anonymous constant. Verification failures never reject
// the request; the chain just moves on.
func Identity(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, authenticated := resolveKey(c, verifier)
		c.Set(clientKeyKey, key)
		c.Set(authenticatedKey, authenticated)
		c.Next()
	}
}

func resolveKey(c *gin.Context, verifier TokenVerifier) (string, bool) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = strings.TrimSpace(c.Query("token"))
	}
	if token != "" && verifier != nil {
		userID, err := verifier.Verify(c.Request.Context(), token)
		if err == nil && userID != "" {
			return userID, true
		}
		slog.Debug("token verification failed, degrading identity", "error", err)
	}

	if userID := strings.TrimSpace(c.Query("user_id")); userID != "" {
		return userID, false
	}
	if ip := c.ClientIP(); ip != "" {
		return ip, false
	}
	return AnonymousKey, false
}

// extractBearerToken pulls the token from an Authorization header value.
// Returns empty for anything that is not a well-formed Bearer scheme.
func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ClientKey returns the identity resolved by Identity, or the anonymous
// constant when the middleware did not run.
func ClientKey(c *gin.Context) string {
	if v, ok := c.Get(clientKeyKey); ok {
		if key, ok := v.(string); ok && key != "" {
			return key
		}
	}
	return AnonymousKey
}

// Authenticated reports whether the request carried a verified token.
func Authenticated(c *gin.Context) bool {
	if v, ok := c.Get(authenticatedKey); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
