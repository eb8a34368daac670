// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// Stream Event Types
// =============================================================================

// StreamEventType identifies the kind of wire event sent during streaming.
type StreamEventType string

const (
	// StreamEventConversationID announces the definitive conversation
	// identifier. Sent at most once per request, before any content.
	StreamEventConversationID StreamEventType = "conversation_id"

	// StreamEventUserMessageID carries the canonical identifier assigned
	// to the persisted user message. Sent at most once, before any content.
	StreamEventUserMessageID StreamEventType = "user_message_id"

	// StreamEventContent carries one incremental text chunk.
	StreamEventContent StreamEventType = "content"

	// StreamEventDone terminates a successful stream.
	StreamEventDone StreamEventType = "done"

	// StreamEventError terminates a failed stream.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is the wire-level discriminated union for streaming responses.
//
// # Description
//
// Every SSE frame carries exactly one StreamEvent serialized as JSON:
//
//	data: {"type":"content","data":"Hello"}
//
// The Data payload depends on Type:
//   - conversation_id: conversation identifier (string)
//   - user_message_id: message identifier (string)
//   - content: incremental text chunk (string)
//   - done: DonePayload object
//   - error: human-readable error message (string)
//
// # Limitations
//
//   - Data is kept raw; callers decode via StringData or DoneData.
type StreamEvent struct {
	Type StreamEventType `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DonePayload is the payload of the terminal done event.
type DonePayload struct {
	// MessageID is the canonical identifier of the persisted assistant message.
	MessageID string `json:"messageId"`

	// Tokens is the number of completion tokens the upstream reported,
	// or the number of received deltas when the upstream reported none.
	Tokens int `json:"tokens"`

	// Model is the model that actually served the request.
	Model string `json:"model"`
}

// IsTerminal reports whether the event closes the stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == StreamEventDone || e.Type == StreamEventError
}

// =============================================================================
// Constructors
// =============================================================================

// NewConversationIDEvent builds a conversation_id event.
func NewConversationIDEvent(conversationID string) StreamEvent {
	return newStringEvent(StreamEventConversationID, conversationID)
}

// NewUserMessageIDEvent builds a user_message_id event.
func NewUserMessageIDEvent(messageID string) StreamEvent {
	return newStringEvent(StreamEventUserMessageID, messageID)
}

// NewContentEvent builds a content event carrying one incremental chunk.
func NewContentEvent(delta string) StreamEvent {
	return newStringEvent(StreamEventContent, delta)
}

// NewDoneEvent builds the terminal done event.
func NewDoneEvent(payload DonePayload) StreamEvent {
	data, _ := json.Marshal(payload)
	return StreamEvent{Type: StreamEventDone, Data: data}
}

// NewErrorEvent builds the terminal error event.
//
// The message must already be sanitized for client display.
func NewErrorEvent(message string) StreamEvent {
	return newStringEvent(StreamEventError, message)
}

func newStringEvent(t StreamEventType, s string) StreamEvent {
	data, _ := json.Marshal(s)
	return StreamEvent{Type: t, Data: data}
}

// =============================================================================
// Payload Accessors
// =============================================================================

// StringData decodes the event payload as a plain string.
//
// Valid for conversation_id, user_message_id, content, and error events.
func (e StreamEvent) StringData() (string, error) {
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return s, nil
}

// DoneData decodes the payload of a done event.
func (e StreamEvent) DoneData() (DonePayload, error) {
	var p DonePayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return DonePayload{}, fmt.Errorf("decode done payload: %w", err)
	}
	return p, nil
}
