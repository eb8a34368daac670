// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the request, persistence, and wire types shared
// by the chat service handlers, stores, and helpers.
package datatypes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Roles and Modes
// =============================================================================

// Message roles as persisted and as sent upstream.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Writing modes selectable per request. Each mode maps to a system prompt.
const (
	ModeChat  = "chat"
	ModeWrite = "write"
	ModeEdit  = "edit"
)

// MaxMessageBytes bounds the size of a single user message.
const MaxMessageBytes = 65536

// =============================================================================
// Validation Setup
// =============================================================================

var validate = validator.New()

func init() {
	// notblank rejects strings that are empty after trimming whitespace.
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	// maxbytes=N rejects strings longer than N bytes.
	_ = validate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
}

// =============================================================================
// Request Types
// =============================================================================

// ChatStreamRequest is the client request that opens a streaming send.
//
// # Description
//
// ConversationID is optional: when absent, or when it does not match the
// canonical identifier format, the server creates a new conversation.
// A malformed ConversationID is therefore not a validation failure.
//
// Message must be non-empty after trimming. SelectedContextIDs reference
// stored chapters whose text is prefixed to the upstream prompt; the
// persisted user message stays exactly as submitted.
//
// # Assumptions
//
//   - Mode defaults to "chat" when empty (see EnsureDefaults).
//   - Model, when set, overrides the configured default for this request only.
type ChatStreamRequest struct {
	ConversationID     string   `json:"conversationId,omitempty" validate:"omitempty,max=128"`
	Message            string   `json:"message" validate:"required,notblank,maxbytes=65536"`
	SelectedContextIDs []string `json:"selectedContextIds,omitempty" validate:"omitempty,max=16,dive,uuid4"`
	Mode               string   `json:"mode,omitempty" validate:"omitempty,oneof=chat write edit"`
	Model              string   `json:"model,omitempty" validate:"omitempty,max=128"`
}

// Validate checks the request against its struct tags.
func (r *ChatStreamRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid chat stream request: %w", err)
	}
	return nil
}

// EnsureDefaults fills optional fields with their defaults.
func (r *ChatStreamRequest) EnsureDefaults() {
	if r.Mode == "" {
		r.Mode = ModeChat
	}
}

// CreateChapterRequest creates a stored chapter usable as selected context.
type CreateChapterRequest struct {
	Title   string `json:"title" validate:"required,notblank,max=256"`
	Content string `json:"content" validate:"required,maxbytes=262144"`
}

// Validate checks the request against its struct tags.
func (r *CreateChapterRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid chapter request: %w", err)
	}
	return nil
}

// =============================================================================
// Persistence Models
// =============================================================================

// Conversation is a titled thread of messages owned by one user.
type Conversation struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Message is one persisted turn of a conversation.
//
// Tokens and Model are populated for assistant messages only.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Model          string `json:"model,omitempty"`
	Tokens         int    `json:"tokens,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
}

// Chapter is a stored block of manuscript text that can be selected as
// auxiliary context for a send.
type Chapter struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}
