// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gateway wraps the upstream completion API behind a small client
// interface with a non-streaming call (title generation) and a streaming
// call (delta relay).
//
// Clients are stateless between calls and cheap to construct; the handlers
// build one per request from per-request credentials so one user's API key
// can never leak into another user's call.
package gateway

import (
	"context"
	"fmt"
)

// =============================================================================
// Types
// =============================================================================

// Credentials carries the upstream API credential resolved for one request.
type Credentials struct {
	// APIKey authenticates against the upstream API.
	APIKey string

	// BaseURL points at an OpenAI-compatible endpoint.
	// Empty means the upstream's default.
	BaseURL string
}

// ChatMessage is one role/content pair of the upstream prompt.
type ChatMessage struct {
	Role    string
	Content string
}

// CompletionRequest describes one upstream call.
type CompletionRequest struct {
	// SystemPrompt is prepended as the system message when non-empty.
	SystemPrompt string

	// Messages is the bounded conversation history plus the current turn.
	Messages []ChatMessage

	// Model selects the upstream model.
	Model string

	// Temperature overrides the upstream default when non-nil.
	Temperature *float32

	// MaxTokens bounds the completion length when non-nil.
	MaxTokens *int
}

// Delta is one incremental chunk of a streaming completion.
type Delta struct {
	// Content is the incremental text, possibly empty for metadata-only chunks.
	Content string
}

// StreamStats summarizes a finished streaming call.
type StreamStats struct {
	// Tokens is the completion token count the upstream reported, or the
	// number of non-empty deltas when the upstream reported no usage.
	Tokens int

	// Model is the model identifier from the upstream response metadata.
	// Empty if the upstream never reported one.
	Model string
}

// OnDelta receives deltas synchronously, in arrival order.
// Returning an error aborts the stream.
type OnDelta func(Delta) error

// =============================================================================
// Interface Definition
// =============================================================================

// Client is the boundary to the upstream completion API.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; they hold no per-call state.
type Client interface {
	// Complete performs a single-shot completion and returns the full text.
	//
	// Fails with *UpstreamError when the upstream rejects the request or
	// returns no choices.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// CompleteStream performs a streaming completion, invoking onDelta for
	// every chunk in arrival order. It returns only after the upstream
	// stream terminates.
	//
	// If the connection drops mid-stream, deltas already delivered remain
	// with the caller and the error is surfaced once detected.
	CompleteStream(ctx context.Context, req CompletionRequest, onDelta OnDelta) (StreamStats, error)
}

// Factory builds a Client for one request's credentials.
type Factory func(creds Credentials) Client

// =============================================================================
// Errors
// =============================================================================

// UpstreamError reports a failure surfaced by the upstream API.
//
// Message is the upstream's own text and is the only error detail that may
// be echoed to clients.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream error: %s", e.Message)
}
