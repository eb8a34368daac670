// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains parsers for the streaming wire format. Parsers ONLY
// parse; they do not perform I/O, rendering, or state management.
package ux

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// SSE Parser Interface
// =============================================================================

// SSEParser parses Server-Sent Events lines into StreamEvent structs.
//
// The server sends data-only frames:
//
//	data: {"type":"content","data":"Hello"}\n
//	\n
//
// Empty lines are event delimiters (ignored). Lines starting with ":" are
// keepalive comments (ignored).
//
// # Thread Safety
//
// The default implementation is stateless and safe for concurrent use.
type SSEParser interface {
	// ParseLine parses a single line of SSE input.
	//
	// Returns nil, nil for empty and comment lines. Returns an error if a
	// data line's JSON payload does not decode.
	ParseLine(line string) (*StreamEvent, error)

	// ParseFrame parses a raw JSON payload without the "data:" prefix.
	ParseFrame(payload []byte) (*StreamEvent, error)
}

// =============================================================================
// SSE Parser Implementation
// =============================================================================

type sseParser struct{}

// NewSSEParser creates a stateless SSE parser.
func NewSSEParser() SSEParser {
	return &sseParser{}
}

func (p *sseParser) ParseLine(line string) (*StreamEvent, error) {
	line = strings.TrimSpace(line)

	// Empty lines are event delimiters
	if line == "" {
		return nil, nil
	}

	// Comments start with ":" (server keepalives)
	if strings.HasPrefix(line, ":") {
		return nil, nil
	}

	if strings.HasPrefix(line, "data:") {
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		return p.ParseFrame([]byte(payload))
	}

	return nil, fmt.Errorf("unexpected stream line: %q", line)
}

func (p *sseParser) ParseFrame(payload []byte) (*StreamEvent, error) {
	var raw struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	event := &StreamEvent{Type: StreamEventType(raw.Type)}

	switch event.Type {
	case StreamEventConversationID:
		if err := json.Unmarshal(raw.Data, &event.ConversationID); err != nil {
			return nil, fmt.Errorf("decode conversation_id payload: %w", err)
		}
	case StreamEventUserMessageID:
		if err := json.Unmarshal(raw.Data, &event.UserMessageID); err != nil {
			return nil, fmt.Errorf("decode user_message_id payload: %w", err)
		}
	case StreamEventContent:
		if err := json.Unmarshal(raw.Data, &event.Content); err != nil {
			return nil, fmt.Errorf("decode content payload: %w", err)
		}
	case StreamEventDone:
		var done DoneInfo
		if err := json.Unmarshal(raw.Data, &done); err != nil {
			return nil, fmt.Errorf("decode done payload: %w", err)
		}
		event.Done = &done
	case StreamEventError:
		if err := json.Unmarshal(raw.Data, &event.Error); err != nil {
			return nil, fmt.Errorf("decode error payload: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown event type: %q", raw.Type)
	}

	return event, nil
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ SSEParser = (*sseParser)(nil)
