// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	userID string
	err    error
	calls  int
}

func (f *fakeVerifier) Verify(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.userID, f.err
}

func runIdentity(t *testing.T, verifier TokenVerifier, target string, headers map[string]string) (string, bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var key string
	var authed bool
	router := gin.New()
	router.Use(Identity(verifier))
	router.GET("/assistant", func(c *gin.Context) {
		key = ClientKey(c)
		authed = Authenticated(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	router.ServeHTTP(httptest.NewRecorder(), req)
	return key, authed
}

func TestIdentityVerifiedBearerWins(t *testing.T) {
	v := &fakeVerifier{userID: "user-42"}
	key, authed := runIdentity(t, v, "/assistant?user_id=spoofed", map[string]string{
		"Authorization": "Bearer tok-1",
	})
	assert.Equal(t, "user-42", key)
	assert.True(t, authed)
	assert.Equal(t, 1, v.calls)
}

func TestIdentityTokenQueryParam(t *testing.T) {
	v := &fakeVerifier{userID: "user-7"}
	key, authed := runIdentity(t, v, "/assistant?token=legacy-tok", nil)
	assert.Equal(t, "user-7", key)
	assert.True(t, authed)
}

func TestIdentityDegradesOnVerifyFailure(t *testing.T) {
	v := &fakeVerifier{err: errors.New("expired")}
	key, authed := runIdentity(t, v, "/assistant?user_id=u-raw", map[string]string{
		"Authorization": "Bearer bad",
	})
	assert.Equal(t, "u-raw", key)
	assert.False(t, authed)
}

func TestIdentityFallsToUserIDThenIP(t *testing.T) {
	key, _ := runIdentity(t, nil, "/assistant?user_id=u-raw", nil)
	assert.Equal(t, "u-raw", key)

	// httptest requests carry a remote addr, so the IP step resolves.
	key, _ = runIdentity(t, nil, "/assistant", nil)
	assert.NotEmpty(t, key)
	assert.NotEqual(t, AnonymousKey, key)
}

func TestIdentityMalformedAuthorizationIgnored(t *testing.T) {
	v := &fakeVerifier{userID: "user-42"}
	key, authed := runIdentity(t, v, "/assistant?user_id=u-raw", map[string]string{
		"Authorization": "Basic dXNlcjpwYXNz",
	})
	assert.Equal(t, "u-raw", key)
	assert.False(t, authed)
	assert.Equal(t, 0, v.calls)
}

func TestClientKeyWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	require.Equal(t, AnonymousKey, ClientKey(c))
	assert.False(t, Authenticated(c))
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", extractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", extractBearerToken("bearer abc"))
	assert.Equal(t, "", extractBearerToken(""))
	assert.Equal(t, "", extractBearerToken("Bearer"))
	assert.Equal(t, "", extractBearerToken("Token abc"))
}
