// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the chat service endpoints onto a gin engine.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrivano-ai/scrivano/services/chat/handlers"
	"github.com/scrivano-ai/scrivano/services/chat/middleware"
)

// Handlers bundles the handler implementations the router needs.
type Handlers struct {
	Stream        handlers.StreamingChatHandler
	Conversations handlers.ConversationHandler
}

// SetupRoutes registers every endpoint on the engine.
//
// /health and /metrics are unauthenticated; everything under /v1 goes
// through bearer auth. tokens maps bearer tokens to identities; an empty
// map still allows tokenless local access.
func SetupRoutes(router *gin.Engine, h Handlers, tokens map[string]middleware.AuthInfo) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(tokens))
	{
		v1.POST("/chat/stream", h.Stream.HandleChatStream)

		v1.GET("/conversations", h.Conversations.HandleList)
		v1.GET("/conversations/:conversationId/messages", h.Conversations.HandleMessages)
		v1.DELETE("/conversations/:conversationId", h.Conversations.HandleDelete)

		v1.POST("/chapters", h.Conversations.HandleCreateChapter)
		v1.GET("/chapters/:chapterId", h.Conversations.HandleGetChapter)
	}
}
