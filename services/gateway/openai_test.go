// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuildRequest_SystemPromptFirst verifies the system prompt leads the
// message list and history order is preserved.
func TestBuildRequest_SystemPromptFirst(t *testing.T) {
	c := &openAIClient{}

	req := CompletionRequest{
		SystemPrompt: "You are a writing assistant.",
		Messages: []ChatMessage{
			{Role: "user", Content: "Hello"},
			{Role: "assistant", Content: "Hi"},
			{Role: "user", Content: "Continue"},
		},
		Model: "gpt-4o-mini",
	}

	out := c.buildRequest(req, true)

	require.Len(t, out.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, out.Messages[0].Role)
	assert.Equal(t, "Hello", out.Messages[1].Content)
	assert.Equal(t, "Continue", out.Messages[3].Content)
	assert.True(t, out.Stream)
	require.NotNil(t, out.StreamOptions)
	assert.True(t, out.StreamOptions.IncludeUsage)
}

// TestBuildRequest_NoSystemPrompt verifies no empty system message is added.
func TestBuildRequest_NoSystemPrompt(t *testing.T) {
	c := &openAIClient{}

	out := c.buildRequest(CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "Hello"}},
		Model:    "gpt-4o-mini",
	}, false)

	require.Len(t, out.Messages, 1)
	assert.Equal(t, "user", out.Messages[0].Role)
	assert.False(t, out.Stream)
}

// TestMapUpstreamError_APIError verifies API errors become UpstreamError
// with the upstream's own message preserved.
func TestMapUpstreamError_APIError(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}

	err := mapUpstreamError(apiErr)

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 429, ue.Status)
	assert.Contains(t, ue.Message, "rate limited")
}

// TestMapUpstreamError_ContextCanceled verifies cancellation passes through
// unchanged so callers can detect client disconnects.
func TestMapUpstreamError_ContextCanceled(t *testing.T) {
	err := mapUpstreamError(context.Canceled)

	assert.ErrorIs(t, err, context.Canceled)

	var ue *UpstreamError
	assert.False(t, errors.As(err, &ue), "cancellation should not become an upstream error")
}

// TestMapUpstreamError_Generic verifies other transport errors are wrapped.
func TestMapUpstreamError_Generic(t *testing.T) {
	err := mapUpstreamError(errors.New("connection refused"))

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Message, "connection refused")
}
