// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chatclient implements the client side of the scrivano streaming
// chat protocol: optimistic message state, per-conversation stream guarding,
// and the send state machine.
package chatclient

import (
	"github.com/google/uuid"
)

// =============================================================================
// Message Identity
// =============================================================================

// MessageID identifies a message as either temporary (client-assigned,
// awaiting server confirmation) or canonical (server-assigned).
//
// The distinction is carried in the type rather than in an ID prefix, so
// code that forgets to check cannot accidentally persist or share a
// temporary identifier.
type MessageID struct {
	value     string
	temporary bool
}

// TemporaryMessageID creates a fresh client-side identifier for an
// optimistic message.
func TemporaryMessageID() MessageID {
	return MessageID{value: uuid.New().String(), temporary: true}
}

// CanonicalMessageID wraps a server-assigned identifier.
func CanonicalMessageID(id string) MessageID {
	return MessageID{value: id}
}

// String returns the raw identifier value.
func (id MessageID) String() string {
	return id.value
}

// IsTemporary reports whether the identifier is client-assigned and still
// awaiting server confirmation.
func (id MessageID) IsTemporary() bool {
	return id.temporary
}

// IsZero reports whether the identifier is unset.
func (id MessageID) IsZero() bool {
	return id.value == ""
}

// Equal compares both the value and the temporary flag.
func (id MessageID) Equal(other MessageID) bool {
	return id.value == other.value && id.temporary == other.temporary
}

// =============================================================================
// Message
// =============================================================================

// Roles mirror the server's message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in the session's local transcript.
type Message struct {
	ID      MessageID
	Role    string
	Content string

	// Streaming marks the assistant message currently being assembled
	// from content events. At most one message has this set.
	Streaming bool
}
