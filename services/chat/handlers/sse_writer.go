// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/scrivano-ai/scrivano/services/chat/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// StreamWriter writes wire events to an SSE response.
//
// # Description
//
// StreamWriter abstracts event serialization and writing, enabling
// testability and separation from HTTP response mechanics. Each frame is
// written in the data-only SSE form:
//
//	data: {"type":"content","data":"Hello"}
//
// followed by a blank line, and flushed immediately.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the heartbeat goroutine
// writes keepalives while the relay loop writes content.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders before the first write.
type StreamWriter interface {
	// WriteEvent writes a single wire event and flushes.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteConversationID announces the definitive conversation identifier.
	// Must precede any content event; sent at most once per stream.
	WriteConversationID(conversationID string) error

	// WriteUserMessageID announces the canonical identifier of the
	// persisted user message. Must precede any content event.
	WriteUserMessageID(messageID string) error

	// WriteContent writes one incremental text chunk.
	WriteContent(delta string) error

	// WriteDone writes the terminal done event.
	// No events may be written after it.
	WriteDone(payload datatypes.DonePayload) error

	// WriteError writes the terminal error event.
	// The message must already be sanitized for client display.
	WriteError(message string) error

	// WriteKeepAlive sends an SSE comment (": ping") to keep the
	// connection alive through load balancer idle timeouts. Comments are
	// invisible to the event protocol.
	WriteKeepAlive() error
}

// =============================================================================
// Struct Definition
// =============================================================================

// sseStreamWriter implements StreamWriter for HTTP SSE responses.
//
// Cannot be reused across requests.
type sseStreamWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// =============================================================================
// Constructor
// =============================================================================

// NewStreamWriter creates a StreamWriter for the given ResponseWriter.
//
// Returns an error if the ResponseWriter does not support http.Flusher;
// streaming is impossible without immediate flushing.
func NewStreamWriter(w http.ResponseWriter) (StreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseStreamWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

func (w *sseStreamWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

func (w *sseStreamWriter) WriteConversationID(conversationID string) error {
	return w.WriteEvent(datatypes.NewConversationIDEvent(conversationID))
}

func (w *sseStreamWriter) WriteUserMessageID(messageID string) error {
	return w.WriteEvent(datatypes.NewUserMessageIDEvent(messageID))
}

func (w *sseStreamWriter) WriteContent(delta string) error {
	return w.WriteEvent(datatypes.NewContentEvent(delta))
}

func (w *sseStreamWriter) WriteDone(payload datatypes.DonePayload) error {
	return w.WriteEvent(datatypes.NewDoneEvent(payload))
}

func (w *sseStreamWriter) WriteError(message string) error {
	return w.WriteEvent(datatypes.NewErrorEvent(message))
}

func (w *sseStreamWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// SSE comment format: colon followed by text, then a blank line.
	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
//
// Must be called before any response body is written. X-Accel-Buffering
// disables nginx proxy buffering, which would otherwise hold tokens back.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ StreamWriter = (*sseStreamWriter)(nil)
