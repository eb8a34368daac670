// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scrivano-ai/scrivano/services/chat/datatypes"
	"github.com/scrivano-ai/scrivano/services/chat/middleware"
	"github.com/scrivano-ai/scrivano/services/chat/store"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ConversationHandler serves the conversation and chapter CRUD endpoints.
//
// GET /v1/conversations/:conversationId/messages is the authoritative fetch
// the streaming client uses for its silent reconcile after a done event.
type ConversationHandler interface {
	// HandleList processes GET /v1/conversations.
	HandleList(c *gin.Context)

	// HandleMessages processes GET /v1/conversations/:conversationId/messages.
	HandleMessages(c *gin.Context)

	// HandleDelete processes DELETE /v1/conversations/:conversationId.
	HandleDelete(c *gin.Context)

	// HandleCreateChapter processes POST /v1/chapters.
	HandleCreateChapter(c *gin.Context)

	// HandleGetChapter processes GET /v1/chapters/:chapterId.
	HandleGetChapter(c *gin.Context)
}

type conversationHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewConversationHandler creates the CRUD handler. Panics if st is nil.
func NewConversationHandler(st store.Store, logger *slog.Logger) ConversationHandler {
	if st == nil {
		panic("handlers: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &conversationHandler{store: st, logger: logger}
}

// =============================================================================
// Conversation Endpoints
// =============================================================================

func (h *conversationHandler) HandleList(c *gin.Context) {
	userID := requestUserID(c)

	convs, err := h.store.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("conversation list failed", "error", err, "userId", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	if convs == nil {
		convs = []datatypes.Conversation{}
	}

	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h *conversationHandler) HandleMessages(c *gin.Context) {
	userID := requestUserID(c)
	convID := c.Param("conversationId")

	conv, ok := h.ownedConversation(c, userID, convID)
	if !ok {
		return
	}

	msgs, err := h.store.ListMessages(c.Request.Context(), conv.ID)
	if err != nil {
		h.logger.Error("message list failed", "error", err, "conversationId", conv.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []datatypes.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *conversationHandler) HandleDelete(c *gin.Context) {
	userID := requestUserID(c)
	convID := c.Param("conversationId")

	conv, ok := h.ownedConversation(c, userID, convID)
	if !ok {
		return
	}

	if err := h.store.DeleteConversation(c.Request.Context(), conv.ID); err != nil {
		h.logger.Error("conversation delete failed", "error", err, "conversationId", conv.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}

	h.logger.Info("conversation deleted", "conversationId", conv.ID, "userId", userID)
	c.Status(http.StatusNoContent)
}

// =============================================================================
// Chapter Endpoints
// =============================================================================

func (h *conversationHandler) HandleCreateChapter(c *gin.Context) {
	userID := requestUserID(c)

	var req datatypes.CreateChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and content are required"})
		return
	}

	chapter := &datatypes.Chapter{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     req.Title,
		Content:   req.Content,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := h.store.CreateChapter(c.Request.Context(), chapter); err != nil {
		h.logger.Error("chapter create failed", "error", err, "userId", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save chapter"})
		return
	}

	c.JSON(http.StatusCreated, chapter)
}

func (h *conversationHandler) HandleGetChapter(c *gin.Context) {
	userID := requestUserID(c)
	chapterID := c.Param("chapterId")

	chapter, err := h.store.GetChapter(c.Request.Context(), chapterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chapter not found"})
			return
		}
		h.logger.Error("chapter get failed", "error", err, "chapterId", chapterID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chapter"})
		return
	}
	// Foreign chapters are indistinguishable from missing ones.
	if chapter.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "chapter not found"})
		return
	}

	c.JSON(http.StatusOK, chapter)
}

// =============================================================================
// Helpers
// =============================================================================

// ownedConversation loads a conversation and enforces user scope. Foreign
// conversations return 404, not 403, to avoid confirming their existence.
func (h *conversationHandler) ownedConversation(c *gin.Context, userID, convID string) (*datatypes.Conversation, bool) {
	conv, err := h.store.GetConversation(c.Request.Context(), convID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return nil, false
		}
		h.logger.Error("conversation get failed", "error", err, "conversationId", convID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return nil, false
	}
	if conv.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return nil, false
	}

	return conv, true
}

func requestUserID(c *gin.Context) string {
	if auth := middleware.GetAuthInfo(c); auth != nil {
		return auth.UserID
	}
	return middleware.LocalUserID
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ ConversationHandler = (*conversationHandler)(nil)
