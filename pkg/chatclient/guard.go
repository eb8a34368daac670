// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chatclient

import (
	"context"
	"sync"
)

// =============================================================================
// Stream Guard
// =============================================================================

// newConversationKey guards sends that have no conversation identifier yet.
// All such sends contend on the same slot until the server assigns one.
const newConversationKey = "__new__"

// streamHandle represents one acquired stream slot. Release requires the
// handle so a superseded stream cannot release its successor's slot.
type streamHandle struct {
	cancel context.CancelFunc
}

// StreamGuard enforces at most one in-flight stream per conversation.
//
// Two acquisition modes exist: TryAcquire refuses when a stream is already
// running, Supersede cancels the running stream and takes its slot. The
// send path uses Supersede so the newest user input always wins.
//
// # Thread Safety
//
// Safe for concurrent use.
type StreamGuard struct {
	mu     sync.Mutex
	active map[string]*streamHandle
}

// NewStreamGuard creates an empty guard.
func NewStreamGuard() *StreamGuard {
	return &StreamGuard{active: make(map[string]*streamHandle)}
}

// TryAcquire claims the slot for conversationID if it is free.
//
// Returns a non-nil handle on success, nil when a stream is already in
// flight. cancel is invoked if the stream is later superseded.
func (g *StreamGuard) TryAcquire(conversationID string, cancel context.CancelFunc) *streamHandle {
	key := guardKey(conversationID)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, inFlight := g.active[key]; inFlight {
		return nil
	}

	handle := &streamHandle{cancel: cancel}
	g.active[key] = handle
	return handle
}

// Supersede claims the slot for conversationID, cancelling any stream that
// currently holds it. The cancelled stream observes context.Canceled and
// unwinds on its own; Supersede does not wait for it.
func (g *StreamGuard) Supersede(conversationID string, cancel context.CancelFunc) *streamHandle {
	key := guardKey(conversationID)

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, inFlight := g.active[key]; inFlight {
		existing.cancel()
	}

	handle := &streamHandle{cancel: cancel}
	g.active[key] = handle
	return handle
}

// Release frees the slot, but only if handle still owns it. A superseded
// stream's late Release is a no-op.
func (g *StreamGuard) Release(conversationID string, handle *streamHandle) {
	key := guardKey(conversationID)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active[key] == handle {
		delete(g.active, key)
	}
}

// InFlight reports whether a stream currently holds the conversation's slot.
func (g *StreamGuard) InFlight(conversationID string) bool {
	key := guardKey(conversationID)

	g.mu.Lock()
	defer g.mu.Unlock()

	_, inFlight := g.active[key]
	return inFlight
}

func guardKey(conversationID string) string {
	if conversationID == "" {
		return newConversationKey
	}
	return conversationID
}
