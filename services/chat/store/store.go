// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store provides embedded persistence for conversations, messages,
// and chapters on top of BadgerDB.
//
// The streaming pipeline is the only writer of messages; handlers read and
// delete. All operations are atomic per key via Badger transactions.
package store

import (
	"context"
	"errors"

	"github.com/scrivano-ai/scrivano/services/chat/datatypes"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// =============================================================================
// Interface Definition
// =============================================================================

// Store is the persistence boundary of the chat service.
//
// # Description
//
// Conversations and chapters are scoped to a user; callers are responsible
// for checking the UserID of returned records against the authenticated
// user. Messages are scoped to their conversation and returned in creation
// order.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple requests.
type Store interface {
	// CreateConversation persists a new conversation.
	CreateConversation(ctx context.Context, conv *datatypes.Conversation) error

	// GetConversation loads one conversation by identifier.
	// Returns ErrNotFound if it does not exist.
	GetConversation(ctx context.Context, id string) (*datatypes.Conversation, error)

	// ListConversations returns all conversations for a user,
	// most recently updated first.
	ListConversations(ctx context.Context, userID string) ([]datatypes.Conversation, error)

	// TouchConversation updates the conversation's UpdatedAt timestamp.
	TouchConversation(ctx context.Context, id string, updatedAt int64) error

	// DeleteConversation removes a conversation and all of its messages.
	DeleteConversation(ctx context.Context, id string) error

	// AppendMessage persists one message at the end of its conversation.
	AppendMessage(ctx context.Context, msg *datatypes.Message) error

	// ListMessages returns all messages of a conversation in creation order.
	ListMessages(ctx context.Context, conversationID string) ([]datatypes.Message, error)

	// CreateChapter persists a chapter usable as selected context.
	CreateChapter(ctx context.Context, chapter *datatypes.Chapter) error

	// GetChapter loads one chapter by identifier.
	// Returns ErrNotFound if it does not exist.
	GetChapter(ctx context.Context, id string) (*datatypes.Chapter, error)

	// Close releases the underlying database.
	Close() error
}
