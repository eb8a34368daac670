// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_EmptyAndComments(t *testing.T) {
	p := NewSSEParser()

	event, err := p.ParseLine("")
	assert.NoError(t, err)
	assert.Nil(t, event)

	event, err = p.ParseLine("   ")
	assert.NoError(t, err)
	assert.Nil(t, event)

	event, err = p.ParseLine(": ping")
	assert.NoError(t, err)
	assert.Nil(t, event, "keepalive comments are ignored")
}

func TestParseLine_ContentEvent(t *testing.T) {
	p := NewSSEParser()

	event, err := p.ParseLine(`data: {"type":"content","data":"Hello"}`)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, StreamEventContent, event.Type)
	assert.Equal(t, "Hello", event.Content)
	assert.False(t, event.IsTerminal())
}

func TestParseLine_NoSpaceAfterColon(t *testing.T) {
	p := NewSSEParser()

	event, err := p.ParseLine(`data:{"type":"content","data":"x"}`)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "x", event.Content)
}

func TestParseLine_IdentifierEvents(t *testing.T) {
	p := NewSSEParser()

	event, err := p.ParseLine(`data: {"type":"conversation_id","data":"conv-123"}`)
	require.NoError(t, err)
	assert.Equal(t, StreamEventConversationID, event.Type)
	assert.Equal(t, "conv-123", event.ConversationID)

	event, err = p.ParseLine(`data: {"type":"user_message_id","data":"msg-456"}`)
	require.NoError(t, err)
	assert.Equal(t, StreamEventUserMessageID, event.Type)
	assert.Equal(t, "msg-456", event.UserMessageID)
}

func TestParseLine_DoneEvent(t *testing.T) {
	p := NewSSEParser()

	event, err := p.ParseLine(`data: {"type":"done","data":{"messageId":"msg-789","tokens":42,"model":"gpt-4o-mini"}}`)
	require.NoError(t, err)
	require.NotNil(t, event.Done)
	assert.Equal(t, "msg-789", event.Done.MessageID)
	assert.Equal(t, 42, event.Done.Tokens)
	assert.Equal(t, "gpt-4o-mini", event.Done.Model)
	assert.True(t, event.IsTerminal())
}

func TestParseLine_ErrorEvent(t *testing.T) {
	p := NewSSEParser()

	event, err := p.ParseLine(`data: {"type":"error","data":"model overloaded"}`)
	require.NoError(t, err)
	assert.Equal(t, StreamEventError, event.Type)
	assert.Equal(t, "model overloaded", event.Error)
	assert.True(t, event.IsTerminal())
}

func TestParseLine_Malformed(t *testing.T) {
	p := NewSSEParser()

	_, err := p.ParseLine(`data: not json`)
	assert.Error(t, err)

	_, err = p.ParseLine(`data: {"type":"bogus","data":"x"}`)
	assert.Error(t, err, "unknown event types are rejected")

	_, err = p.ParseLine(`random text line`)
	assert.Error(t, err, "plain text lines are not part of the protocol")
}
