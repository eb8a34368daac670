// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resolver loads or creates the conversation a send targets.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrivano-ai/scrivano/services/chat/datatypes"
	"github.com/scrivano-ai/scrivano/services/chat/store"
	"github.com/scrivano-ai/scrivano/services/gateway"
)

// DefaultTitle is used when title generation fails. Resolution itself never
// fails because of the title.
const DefaultTitle = "New conversation"

// titleSystemPrompt drives the non-streaming title call.
const titleSystemPrompt = "You generate conversation titles. Reply with a title of at most " +
	"six words for a conversation that starts with the given message. Reply with the " +
	"title only: no quotes, no punctuation at the end."

// titleTimeout bounds the title-generation call so a slow upstream cannot
// stall the first wire event indefinitely.
const titleTimeout = 10 * time.Second

// =============================================================================
// Interface Definition
// =============================================================================

// Resolver loads an existing conversation or creates a new one.
//
// # Description
//
// Resolution happens exactly once per request, before any token is relayed,
// so the first wire event can announce the definitive conversation
// identifier even for brand-new conversations.
//
// A supplied identifier is honored only when it is syntactically canonical,
// the lookup succeeds, AND the conversation belongs to the requesting user.
// Any other case creates a new conversation.
type Resolver interface {
	// Resolve returns the conversation for this send and whether it was
	// newly created.
	//
	// gw is the per-request gateway client used for title generation.
	Resolve(ctx context.Context, userID, conversationID, firstMessage string,
		gw gateway.Client) (*datatypes.Conversation, bool, error)
}

// =============================================================================
// Struct Definition
// =============================================================================

type conversationResolver struct {
	store  store.Store
	model  string
	logger *slog.Logger
}

// NewResolver creates a Resolver backed by the given store.
//
// titleModel is the model used for title generation. Panics if st is nil.
func NewResolver(st store.Store, titleModel string, logger *slog.Logger) Resolver {
	if st == nil {
		panic("resolver: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &conversationResolver{store: st, model: titleModel, logger: logger}
}

// =============================================================================
// Methods
// =============================================================================

func (r *conversationResolver) Resolve(ctx context.Context, userID, conversationID,
	firstMessage string, gw gateway.Client) (*datatypes.Conversation, bool, error) {

	if existing := r.lookup(ctx, userID, conversationID); existing != nil {
		return existing, false, nil
	}

	title := r.generateTitle(ctx, gw, firstMessage)

	now := time.Now().UnixMilli()
	conv := &datatypes.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.store.CreateConversation(ctx, conv); err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}

	r.logger.Info("created conversation",
		"conversationId", conv.ID, "userId", userID, "title", title)

	return conv, true, nil
}

// lookup returns the existing conversation, or nil when the identifier is
// non-canonical, unknown, or owned by a different user.
func (r *conversationResolver) lookup(ctx context.Context, userID, conversationID string) *datatypes.Conversation {
	if conversationID == "" {
		return nil
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		// Non-canonical identifiers mean "create new", not an error.
		return nil
	}

	conv, err := r.store.GetConversation(ctx, conversationID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("conversation lookup failed, creating new",
				"conversationId", conversationID, "error", err)
		}
		return nil
	}
	if conv.UserID != userID {
		r.logger.Warn("conversation belongs to a different user, creating new",
			"conversationId", conversationID, "userId", userID)
		return nil
	}

	return conv
}

// generateTitle derives a short title from the first message via the
// gateway's non-streaming call, falling back to DefaultTitle on any failure.
func (r *conversationResolver) generateTitle(ctx context.Context, gw gateway.Client, firstMessage string) string {
	if gw == nil {
		return DefaultTitle
	}

	titleCtx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	temp := float32(0.2)
	title, err := gw.Complete(titleCtx, gateway.CompletionRequest{
		SystemPrompt: titleSystemPrompt,
		Messages: []gateway.ChatMessage{
			{Role: datatypes.RoleUser, Content: firstMessage},
		},
		Model:       r.model,
		Temperature: &temp,
	})
	if err != nil {
		r.logger.Warn("title generation failed, using fallback", "error", err)
		return DefaultTitle
	}

	title = strings.TrimSpace(strings.Trim(strings.TrimSpace(title), `"`))
	if title == "" {
		return DefaultTitle
	}

	return title
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ Resolver = (*conversationResolver)(nil)
