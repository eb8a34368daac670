// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides client-side handling of the scrivano streaming wire
// format.
//
// This file defines the event model. Parsers convert raw SSE lines into
// StreamEvent structs; readers sequence events from an io.Reader.
package ux

// StreamEventType represents the type of streaming event.
type StreamEventType string

const (
	// StreamEventConversationID announces the definitive conversation
	// identifier. Always the first event of a stream.
	StreamEventConversationID StreamEventType = "conversation_id"

	// StreamEventUserMessageID announces the canonical identifier the
	// server assigned to the persisted user message.
	StreamEventUserMessageID StreamEventType = "user_message_id"

	// StreamEventContent carries one incremental text chunk.
	StreamEventContent StreamEventType = "content"

	// StreamEventDone terminates a successful stream.
	StreamEventDone StreamEventType = "done"

	// StreamEventError terminates a failed stream.
	StreamEventError StreamEventType = "error"
)

// DoneInfo is the payload of a done event.
type DoneInfo struct {
	MessageID string `json:"messageId"`
	Tokens    int    `json:"tokens"`
	Model     string `json:"model"`
}

// StreamEvent is a single parsed event from the server.
//
// Exactly one payload field is populated, determined by Type.
type StreamEvent struct {
	Type StreamEventType

	// ConversationID is set for conversation_id events.
	ConversationID string

	// UserMessageID is set for user_message_id events.
	UserMessageID string

	// Content is set for content events.
	Content string

	// Done is set for done events.
	Done *DoneInfo

	// Error is set for error events. Already sanitized server-side.
	Error string

	// Index is the event's position within the stream, assigned by the
	// reader starting at 0.
	Index int
}

// IsTerminal reports whether no further events follow this one.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == StreamEventDone || e.Type == StreamEventError
}

// StreamCallback is invoked for each parsed event. Returning an error stops
// the read and propagates the error to the caller.
type StreamCallback func(event StreamEvent) error

// StreamResult is the aggregated outcome of reading a full stream.
type StreamResult struct {
	// ConversationID from the conversation_id event.
	ConversationID string

	// UserMessageID from the user_message_id event.
	UserMessageID string

	// Answer is the concatenation of all content chunks.
	Answer string

	// Done is the done payload, nil if the stream did not complete.
	Done *DoneInfo

	// Error is the error event's message, empty on success.
	Error string

	// TotalEvents counts all parsed events.
	TotalEvents int

	// FirstContentAt is the UnixMilli timestamp of the first content
	// event, 0 if none arrived.
	FirstContentAt int64

	// CompletedAt is the UnixMilli timestamp when reading finished.
	CompletedAt int64
}
