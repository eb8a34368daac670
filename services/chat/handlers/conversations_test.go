// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrivano-ai/scrivano/services/chat/datatypes"
	"github.com/scrivano-ai/scrivano/services/chat/middleware"
	"github.com/scrivano-ai/scrivano/services/chat/store"
)

// =============================================================================
// Test Setup
// =============================================================================

type convTestEnv struct {
	store  store.Store
	router *gin.Engine
}

func newConvTestEnv(t *testing.T, auth *middleware.AuthInfo) *convTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := NewConversationHandler(st, nil)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if auth != nil {
			middleware.SetAuthInfo(c, auth)
		}
	})
	router.GET("/v1/conversations", h.HandleList)
	router.GET("/v1/conversations/:conversationId/messages", h.HandleMessages)
	router.DELETE("/v1/conversations/:conversationId", h.HandleDelete)
	router.POST("/v1/chapters", h.HandleCreateChapter)
	router.GET("/v1/chapters/:chapterId", h.HandleGetChapter)

	return &convTestEnv{store: st, router: router}
}

func (env *convTestEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func seedConversation(t *testing.T, st store.Store, userID string, updatedAt int64) *datatypes.Conversation {
	t.Helper()
	conv := &datatypes.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     "seeded",
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	require.NoError(t, st.CreateConversation(context.Background(), conv))
	return conv
}

// =============================================================================
// Conversation Endpoint Tests
// =============================================================================

// TestHandleList_ScopedToUser verifies only the caller's conversations are
// returned, most recently updated first.
func TestHandleList_ScopedToUser(t *testing.T) {
	env := newConvTestEnv(t, nil)

	older := seedConversation(t, env.store, middleware.LocalUserID, 100)
	newer := seedConversation(t, env.store, middleware.LocalUserID, 200)
	seedConversation(t, env.store, "someone-else", 300)

	w := env.do(t, "GET", "/v1/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Conversations []datatypes.Conversation `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Conversations, 2)
	assert.Equal(t, newer.ID, resp.Conversations[0].ID)
	assert.Equal(t, older.ID, resp.Conversations[1].ID)
}

// TestHandleList_EmptyIsArray verifies an empty result serializes as [].
func TestHandleList_EmptyIsArray(t *testing.T) {
	env := newConvTestEnv(t, nil)

	w := env.do(t, "GET", "/v1/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"conversations":[]`)
}

// TestHandleMessages_ReturnsCreationOrder verifies the authoritative message
// fetch used by clients after a completed stream.
func TestHandleMessages_ReturnsCreationOrder(t *testing.T) {
	env := newConvTestEnv(t, nil)
	ctx := context.Background()

	conv := seedConversation(t, env.store, middleware.LocalUserID, 1)
	require.NoError(t, env.store.AppendMessage(ctx, &datatypes.Message{
		ID: uuid.New().String(), ConversationID: conv.ID,
		Role: datatypes.RoleUser, Content: "question", CreatedAt: 10,
	}))
	require.NoError(t, env.store.AppendMessage(ctx, &datatypes.Message{
		ID: uuid.New().String(), ConversationID: conv.ID,
		Role: datatypes.RoleAssistant, Content: "answer", CreatedAt: 20,
	}))

	w := env.do(t, "GET", "/v1/conversations/"+conv.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Messages []datatypes.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "question", resp.Messages[0].Content)
	assert.Equal(t, "answer", resp.Messages[1].Content)
}

// TestHandleMessages_ForeignConversationIs404 verifies foreign records are
// indistinguishable from missing ones.
func TestHandleMessages_ForeignConversationIs404(t *testing.T) {
	env := newConvTestEnv(t, nil)

	foreign := seedConversation(t, env.store, "someone-else", 1)

	w := env.do(t, "GET", "/v1/conversations/"+foreign.ID+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "GET", "/v1/conversations/"+uuid.New().String()+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestHandleDelete_RemovesConversationAndMessages verifies the cascade.
func TestHandleDelete_RemovesConversationAndMessages(t *testing.T) {
	env := newConvTestEnv(t, nil)
	ctx := context.Background()

	conv := seedConversation(t, env.store, middleware.LocalUserID, 1)
	require.NoError(t, env.store.AppendMessage(ctx, &datatypes.Message{
		ID: uuid.New().String(), ConversationID: conv.ID,
		Role: datatypes.RoleUser, Content: "bye", CreatedAt: 10,
	}))

	w := env.do(t, "DELETE", "/v1/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err := env.store.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	msgs, err := env.store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

// TestHandleDelete_ForeignConversationIs404 verifies user scoping on delete.
func TestHandleDelete_ForeignConversationIs404(t *testing.T) {
	env := newConvTestEnv(t, nil)
	ctx := context.Background()

	foreign := seedConversation(t, env.store, "someone-else", 1)

	w := env.do(t, "DELETE", "/v1/conversations/"+foreign.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err := env.store.GetConversation(ctx, foreign.ID)
	assert.NoError(t, err, "foreign conversation must survive")
}

// =============================================================================
// Chapter Endpoint Tests
// =============================================================================

// TestHandleCreateChapter_RoundTrip verifies create and fetch.
func TestHandleCreateChapter_RoundTrip(t *testing.T) {
	env := newConvTestEnv(t, &middleware.AuthInfo{UserID: "alice"})

	w := env.do(t, "POST", "/v1/chapters", datatypes.CreateChapterRequest{
		Title:   "Chapter One",
		Content: "Opening scene.",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created datatypes.Chapter
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice", created.UserID)

	w = env.do(t, "GET", "/v1/chapters/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fetched datatypes.Chapter
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, "Chapter One", fetched.Title)
	assert.Equal(t, "Opening scene.", fetched.Content)
}

// TestHandleCreateChapter_RejectsEmpty verifies validation.
func TestHandleCreateChapter_RejectsEmpty(t *testing.T) {
	env := newConvTestEnv(t, nil)

	w := env.do(t, "POST", "/v1/chapters", datatypes.CreateChapterRequest{Title: "no content"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHandleGetChapter_ForeignIs404 verifies chapter user scoping.
func TestHandleGetChapter_ForeignIs404(t *testing.T) {
	env := newConvTestEnv(t, nil)

	foreign := &datatypes.Chapter{
		ID:      uuid.New().String(),
		UserID:  "someone-else",
		Title:   "private",
		Content: "private text",
	}
	require.NoError(t, env.store.CreateChapter(context.Background(), foreign))

	w := env.do(t, "GET", "/v1/chapters/"+foreign.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
