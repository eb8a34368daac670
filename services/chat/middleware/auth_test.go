// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthTestRouter(tokens map[string]AuthInfo, captured **AuthInfo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AuthMiddleware(tokens))
	router.GET("/whoami", func(c *gin.Context) {
		*captured = GetAuthInfo(c)
		c.Status(http.StatusOK)
	})
	return router
}

// TestAuthMiddleware_NoTokenIsLocalUser verifies the open-core default.
func TestAuthMiddleware_NoTokenIsLocalUser(t *testing.T) {
	var got *AuthInfo
	router := newAuthTestRouter(nil, &got)

	req, _ := http.NewRequest("GET", "/whoami", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, LocalUserID, got.UserID)
	assert.Empty(t, got.APIKey)
}

// TestAuthMiddleware_KnownToken verifies token resolution including the
// per-user API key override.
func TestAuthMiddleware_KnownToken(t *testing.T) {
	var got *AuthInfo
	router := newAuthTestRouter(map[string]AuthInfo{
		"tok-alice": {UserID: "alice", APIKey: "sk-alice"},
	}, &got)

	req, _ := http.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer tok-alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, "sk-alice", got.APIKey)
}

// TestAuthMiddleware_UnknownTokenRejected verifies 401 for unknown tokens.
func TestAuthMiddleware_UnknownTokenRejected(t *testing.T) {
	var got *AuthInfo
	router := newAuthTestRouter(map[string]AuthInfo{
		"tok-alice": {UserID: "alice"},
	}, &got)

	req, _ := http.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer tok-mallory")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, got, "handler should not run for rejected tokens")
}

// TestAuthMiddleware_CaseInsensitiveBearer verifies the RFC 7235 scheme
// comparison.
func TestAuthMiddleware_CaseInsensitiveBearer(t *testing.T) {
	var got *AuthInfo
	router := newAuthTestRouter(map[string]AuthInfo{
		"tok-alice": {UserID: "alice"},
	}, &got)

	req, _ := http.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "bearer tok-alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.UserID)
}
