// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the chat service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization header,
// resolves it against the configured token table, and stores the resulting
// AuthInfo in the Gin context for downstream handlers.
//
// # Open Source Behavior
//
// When no token is presented and no token table is configured, requests are
// authenticated as "local-user". This lets a single-user installation run
// without any authentication infrastructure. The per-user upstream API key
// carried in AuthInfo is resolved per request and never cached across
// requests.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// LocalUserID is the identity assigned when no bearer token is presented.
const LocalUserID = "local-user"

// authInfoKey is the context key for storing AuthInfo.
const authInfoKey = "scrivano_auth_info"

// =============================================================================
// Types
// =============================================================================

// AuthInfo is the authenticated identity of one request.
type AuthInfo struct {
	// UserID scopes conversations and chapters.
	UserID string

	// APIKey is this user's upstream API key override.
	// Empty means "use the process-wide default."
	APIKey string
}

// =============================================================================
// Context Helpers
// =============================================================================

// SetAuthInfo stores the authenticated user info in the Gin context.
func SetAuthInfo(c *gin.Context, info *AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated user info from the Gin context.
// Returns nil if the request was not authenticated.
func GetAuthInfo(c *gin.Context) *AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware creates a Gin middleware that authenticates requests.
//
// # Description
//
// tokens maps bearer tokens to identities. An empty token resolves to
// LocalUserID; a non-empty token not present in the table is rejected
// with 401.
//
// # Thread Safety
//
// The token table is read-only after construction; the middleware is safe
// for concurrent use.
func AuthMiddleware(tokens map[string]AuthInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		if token == "" {
			SetAuthInfo(c, &AuthInfo{UserID: LocalUserID})
			c.Next()
			return
		}

		info, ok := tokens[token]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		SetAuthInfo(c, &info)
		c.Next()
	}
}

// extractBearerToken extracts the token from the Authorization header.
//
// Expected format: "Authorization: Bearer <token>". The Bearer prefix is
// case-insensitive per RFC 7235. Returns empty string if the header is
// missing or malformed.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
