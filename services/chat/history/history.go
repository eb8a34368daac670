// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history projects persisted conversation messages into the bounded
// prompt sent upstream.
package history

import (
	"context"
	"fmt"

	"github.com/scrivano-ai/scrivano/services/chat/store"
	"github.com/scrivano-ai/scrivano/services/gateway"
)

// MaxMessages bounds the history included in an upstream prompt.
// Older messages are dropped, not summarized.
const MaxMessages = 20

// Loader fetches the recent history of a conversation as role/content pairs.
//
// Read-only; no side effects.
type Loader interface {
	// Load returns the most recent MaxMessages persisted messages of the
	// conversation, in creation order.
	Load(ctx context.Context, conversationID string) ([]gateway.ChatMessage, error)
}

type historyLoader struct {
	store store.Store
}

// NewLoader creates a Loader backed by the given store.
// Panics if st is nil.
func NewLoader(st store.Store) Loader {
	if st == nil {
		panic("history: store must not be nil")
	}
	return &historyLoader{store: st}
}

func (l *historyLoader) Load(ctx context.Context, conversationID string) ([]gateway.ChatMessage, error) {
	msgs, err := l.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", conversationID, err)
	}

	// Keep the most recent messages; the store returns creation order.
	if len(msgs) > MaxMessages {
		msgs = msgs[len(msgs)-MaxMessages:]
	}

	out := make([]gateway.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, gateway.ChatMessage{Role: m.Role, Content: m.Content})
	}

	return out, nil
}

var _ Loader = (*historyLoader)(nil)
