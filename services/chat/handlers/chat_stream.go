// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP handlers of the chat service,
// including the streaming send pipeline.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scrivano-ai/scrivano/services/chat/datatypes"
	"github.com/scrivano-ai/scrivano/services/chat/history"
	"github.com/scrivano-ai/scrivano/services/chat/middleware"
	"github.com/scrivano-ai/scrivano/services/chat/observability"
	"github.com/scrivano-ai/scrivano/services/chat/resolver"
	"github.com/scrivano-ai/scrivano/services/chat/store"
	"github.com/scrivano-ai/scrivano/services/gateway"
)

var tracer = otel.Tracer("scrivano.chat.handlers")

// heartbeatInterval is how often keepalive comments are sent during
// generation. Below common load balancer idle timeouts (60s).
const heartbeatInterval = 15 * time.Second

// System prompts selected by request mode. Unknown modes fall back to chat.
var systemPrompts = map[string]string{
	datatypes.ModeChat: "You are a thoughtful writing assistant for novelists. " +
		"Answer questions about craft, plot, and character directly and concretely.",
	datatypes.ModeWrite: "You are a co-writer. Continue or draft prose in the " +
		"author's established voice. Produce manuscript text only, no commentary.",
	datatypes.ModeEdit: "You are a line editor. Revise the given text for " +
		"clarity and rhythm while preserving the author's voice. Return the " +
		"revised text only.",
}

// =============================================================================
// Interface Definition
// =============================================================================

// StreamingChatHandler handles the streaming send endpoint.
type StreamingChatHandler interface {
	// HandleChatStream processes POST /v1/chat/stream.
	//
	// # Description
	//
	// Runs the full producer pipeline: validate -> resolve conversation ->
	// load history -> persist user message -> relay upstream deltas ->
	// persist assistant message -> terminal event. One pipeline instance
	// per HTTP connection; no shared mutable state across requests except
	// the store.
	//
	// Validation failures return a 400 JSON response before any wire event
	// is emitted. Every later failure is converted into a terminal error
	// event rather than an abrupt connection close.
	HandleChatStream(c *gin.Context)
}

// =============================================================================
// Struct Definition
// =============================================================================

// GatewayDefaults carries the process-wide upstream configuration.
// Per-user API keys from auth override APIKey per request.
type GatewayDefaults struct {
	APIKey  string
	BaseURL string
	Model   string
}

type streamingChatHandler struct {
	store     store.Store
	resolver  resolver.Resolver
	history   history.Loader
	clientFor gateway.Factory
	defaults  GatewayDefaults
	metrics   *observability.StreamingMetrics
	logger    *slog.Logger
}

// =============================================================================
// Constructor
// =============================================================================

// NewStreamingChatHandler creates the streaming send handler.
//
// Panics if store, resolver, history, or clientFor is nil; these are
// programming errors, not runtime conditions. metrics may be nil (disabled).
func NewStreamingChatHandler(st store.Store, res resolver.Resolver, hist history.Loader,
	clientFor gateway.Factory, defaults GatewayDefaults,
	metrics *observability.StreamingMetrics, logger *slog.Logger) StreamingChatHandler {

	if st == nil {
		panic("handlers: store must not be nil")
	}
	if res == nil {
		panic("handlers: resolver must not be nil")
	}
	if hist == nil {
		panic("handlers: history loader must not be nil")
	}
	if clientFor == nil {
		panic("handlers: gateway factory must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &streamingChatHandler{
		store:     st,
		resolver:  res,
		history:   hist,
		clientFor: clientFor,
		defaults:  defaults,
		metrics:   metrics,
		logger:    logger,
	}
}

// =============================================================================
// Handler
// =============================================================================

func (h *streamingChatHandler) HandleChatStream(c *gin.Context) {
	start := time.Now()

	// Validation happens before SSE headers are set, so failures here are
	// plain 400 responses with zero wire events.
	var req datatypes.ChatStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.recordError(observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		h.recordError(observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": "message must not be empty"})
		return
	}

	auth := middleware.GetAuthInfo(c)
	userID := middleware.LocalUserID
	if auth != nil {
		userID = auth.UserID
	}

	// Credentials are resolved per request: the per-user key wins over the
	// process default and is never cached across requests.
	creds := gateway.Credentials{APIKey: h.defaults.APIKey, BaseURL: h.defaults.BaseURL}
	if auth != nil && auth.APIKey != "" {
		creds.APIKey = auth.APIKey
	}
	gw := h.clientFor(creds)

	requestedModel := req.Model
	if requestedModel == "" {
		requestedModel = h.defaults.Model
	}

	ctx, span := tracer.Start(c.Request.Context(), "HandleChatStream")
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.user_id", userID),
		attribute.String("chat.mode", req.Mode),
	)

	// The writer is created before the SSE headers go out; the JSON
	// fallback below must not carry a text/event-stream content type.
	writer, err := NewStreamWriter(c.Writer)
	if err != nil {
		h.recordError(observability.ErrorCodeInternal)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	SetSSEHeaders(c.Writer)

	if h.metrics != nil {
		h.metrics.StreamStarted(observability.EndpointChatStream)
		defer h.metrics.StreamEnded(observability.EndpointChatStream)
	}

	success := false
	defer func() {
		if h.metrics != nil {
			h.metrics.RecordRequest(observability.EndpointChatStream, success)
			h.metrics.RecordStreamDuration(observability.EndpointChatStream,
				time.Since(start).Seconds(), success)
		}
	}()

	// --- Resolve ---

	conv, created, err := h.resolver.Resolve(ctx, userID, req.ConversationID, req.Message, gw)
	if err != nil {
		h.logger.Error("conversation resolution failed", "error", err, "userId", userID)
		h.failStream(span, writer, "failed to resolve conversation", observability.ErrorCodeResolution)
		return
	}
	span.SetAttributes(attribute.String("chat.conversation_id", conv.ID))

	h.writeBestEffort(writer.WriteConversationID(conv.ID))

	// --- Load history ---

	historyMsgs, err := h.history.Load(ctx, conv.ID)
	if err != nil {
		h.logger.Error("history load failed", "error", err, "conversationId", conv.ID)
		h.failStream(span, writer, "failed to load conversation history", observability.ErrorCodePersistence)
		return
	}

	// --- Persist user message ---
	//
	// The persisted content is exactly what the client submitted; selected
	// context is applied to the upstream prompt only. Persisting before
	// the model call lets the client remap its optimistic message even if
	// generation later fails.
	userMsg := &datatypes.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           datatypes.RoleUser,
		Content:        req.Message,
		CreatedAt:      time.Now().UnixMilli(),
	}
	if err := h.store.AppendMessage(ctx, userMsg); err != nil {
		h.logger.Error("user message persistence failed", "error", err, "conversationId", conv.ID)
		h.failStream(span, writer, "failed to save message", observability.ErrorCodePersistence)
		return
	}
	if err := h.store.TouchConversation(ctx, conv.ID, userMsg.CreatedAt); err != nil {
		h.logger.Warn("conversation touch failed", "error", err, "conversationId", conv.ID)
	}

	h.writeBestEffort(writer.WriteUserMessageID(userMsg.ID))

	// --- Build upstream prompt ---

	contextPrefix := h.loadSelectedContext(ctx, userID, req.SelectedContextIDs)
	upstreamContent := req.Message
	if contextPrefix != "" {
		upstreamContent = contextPrefix + "\n\n" + req.Message
	}

	promptMsgs := make([]gateway.ChatMessage, 0, len(historyMsgs)+1)
	promptMsgs = append(promptMsgs, historyMsgs...)
	promptMsgs = append(promptMsgs, gateway.ChatMessage{
		Role:    datatypes.RoleUser,
		Content: upstreamContent,
	})

	// --- Relay ---

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go h.runHeartbeat(writer, heartbeatDone)

	var accumulated strings.Builder
	var firstTokenTime time.Time
	clientGone := false

	stats, streamErr := gw.CompleteStream(ctx, gateway.CompletionRequest{
		SystemPrompt: systemPromptFor(req.Mode),
		Messages:     promptMsgs,
		Model:        requestedModel,
	}, func(d gateway.Delta) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if firstTokenTime.IsZero() {
			firstTokenTime = time.Now()
			if h.metrics != nil {
				h.metrics.RecordTimeToFirstToken(observability.EndpointChatStream,
					firstTokenTime.Sub(start).Seconds())
			}
		}

		accumulated.WriteString(d.Content)

		if !clientGone {
			if err := writer.WriteContent(d.Content); err != nil {
				// Peer is gone; stop writing but keep accumulating so the
				// assistant turn can still be persisted.
				clientGone = true
				h.logger.Warn("content write failed, client likely disconnected",
					"conversationId", conv.ID, "error", err)
			}
		}

		return nil
	})

	resolvedModel := stats.Model
	if resolvedModel == "" {
		resolvedModel = requestedModel
	}

	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) {
			h.handleClientDisconnect(conv.ID, accumulated.String(), stats.Tokens, resolvedModel)
			span.SetStatus(codes.Error, "client disconnected")
			return
		}

		// The error event deliberately excludes any partially generated
		// assistant content; the user message stays persisted so history
		// is not corrupted.
		h.logger.Error("upstream stream failed", "error", streamErr,
			"conversationId", conv.ID, "partialBytes", accumulated.Len())
		h.failStream(span, writer, sanitizeErrorForClient(streamErr), observability.ErrorCodeUpstream)
		return
	}

	// --- Persist assistant message ---

	assistantMsg := &datatypes.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           datatypes.RoleAssistant,
		Content:        accumulated.String(),
		Model:          resolvedModel,
		Tokens:         stats.Tokens,
		CreatedAt:      time.Now().UnixMilli(),
	}
	if err := h.store.AppendMessage(ctx, assistantMsg); err != nil {
		h.logger.Error("assistant message persistence failed", "error", err,
			"conversationId", conv.ID)
		h.failStream(span, writer, "failed to save message", observability.ErrorCodePersistence)
		return
	}
	if err := h.store.TouchConversation(ctx, conv.ID, assistantMsg.CreatedAt); err != nil {
		h.logger.Warn("conversation touch failed", "error", err, "conversationId", conv.ID)
	}

	h.writeBestEffort(writer.WriteDone(datatypes.DonePayload{
		MessageID: assistantMsg.ID,
		Tokens:    stats.Tokens,
		Model:     resolvedModel,
	}))

	success = true
	if h.metrics != nil {
		h.metrics.RecordTokens(stats.Tokens, resolvedModel)
	}

	h.logger.Info("stream completed",
		"conversationId", conv.ID,
		"created", created,
		"tokens", stats.Tokens,
		"model", resolvedModel,
		"durationMs", time.Since(start).Milliseconds())
}

// =============================================================================
// Helpers
// =============================================================================

// handleClientDisconnect persists whatever assistant content had accumulated
// when the peer went away, so the next history fetch stays consistent.
// Best-effort: a failure here is logged, not surfaced.
func (h *streamingChatHandler) handleClientDisconnect(conversationID, content string, tokens int, model string) {
	if h.metrics != nil {
		h.metrics.RecordClientDisconnect(observability.EndpointChatStream)
	}
	h.logger.Info("client disconnected during stream",
		"conversationId", conversationID, "partialBytes", len(content))

	if content == "" {
		return
	}

	// The request context is already canceled; persistence gets its own.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), 5*time.Second)
	defer cancel()

	msg := &datatypes.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           datatypes.RoleAssistant,
		Content:        content,
		Model:          model,
		Tokens:         tokens,
		CreatedAt:      time.Now().UnixMilli(),
	}
	if err := h.store.AppendMessage(ctx, msg); err != nil {
		h.logger.Warn("partial assistant persistence failed", "error", err,
			"conversationId", conversationID)
	}
}

// loadSelectedContext resolves chapter references into a prompt prefix.
// Missing or foreign chapters are skipped with a log line; a send never
// fails because of stale context selection.
func (h *streamingChatHandler) loadSelectedContext(ctx context.Context, userID string, ids []string) string {
	if len(ids) == 0 {
		return ""
	}

	var b strings.Builder
	for _, id := range ids {
		chapter, err := h.store.GetChapter(ctx, id)
		if err != nil {
			h.logger.Warn("selected context not found, skipping", "chapterId", id, "error", err)
			continue
		}
		if chapter.UserID != userID {
			h.logger.Warn("selected context belongs to a different user, skipping",
				"chapterId", id, "userId", userID)
			continue
		}
		b.WriteString("[Context: ")
		b.WriteString(chapter.Title)
		b.WriteString("]\n")
		b.WriteString(chapter.Content)
		b.WriteString("\n\n")
	}

	return strings.TrimSpace(b.String())
}

// runHeartbeat sends keepalive comments until the stream finishes.
func (h *streamingChatHandler) runHeartbeat(writer StreamWriter, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				return
			}
			if h.metrics != nil {
				h.metrics.RecordKeepAlive(observability.EndpointChatStream)
			}
		}
	}
}

// failStream emits a terminal error event and records metrics. The write is
// best-effort; the peer may already be gone.
func (h *streamingChatHandler) failStream(span trace.Span, writer StreamWriter,
	clientMsg string, code observability.ErrorCode) {

	span.SetStatus(codes.Error, string(code))
	h.recordError(code)
	h.writeBestEffort(writer.WriteError(clientMsg))
}

func (h *streamingChatHandler) recordError(code observability.ErrorCode) {
	if h.metrics != nil {
		h.metrics.RecordError(observability.EndpointChatStream, code)
	}
}

// writeBestEffort swallows event write failures. A failed write means the
// peer disconnected; the request is already effectively abandoned.
func (h *streamingChatHandler) writeBestEffort(err error) {
	if err != nil {
		h.logger.Debug("event write failed", "error", err)
	}
}

// sanitizeErrorForClient maps internal errors to client-safe text. Only the
// upstream API's own message may be echoed; everything else is generic.
func sanitizeErrorForClient(err error) string {
	var ue *gateway.UpstreamError
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message
	}
	return "the request could not be completed"
}

func systemPromptFor(mode string) string {
	if p, ok := systemPrompts[mode]; ok {
		return p
	}
	return systemPrompts[datatypes.ModeChat]
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ StreamingChatHandler = (*streamingChatHandler)(nil)
