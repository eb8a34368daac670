// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullStream = `data: {"type":"conversation_id","data":"conv-1"}

data: {"type":"user_message_id","data":"msg-1"}

: ping

data: {"type":"content","data":"Hello"}

data: {"type":"content","data":" world"}

data: {"type":"done","data":{"messageId":"msg-2","tokens":2,"model":"gpt-4o-mini"}}
`

func newTestReader() StreamReader {
	return NewSSEStreamReader(NewSSEParser())
}

func TestRead_FullStream(t *testing.T) {
	var events []StreamEvent
	err := newTestReader().Read(context.Background(), strings.NewReader(fullStream),
		func(event StreamEvent) error {
			events = append(events, event)
			return nil
		})

	require.NoError(t, err)
	require.Len(t, events, 5, "keepalive comments never reach the callback")

	assert.Equal(t, StreamEventConversationID, events[0].Type)
	assert.Equal(t, StreamEventUserMessageID, events[1].Type)
	assert.Equal(t, StreamEventContent, events[2].Type)
	assert.Equal(t, StreamEventContent, events[3].Type)
	assert.Equal(t, StreamEventDone, events[4].Type)

	for i, ev := range events {
		assert.Equal(t, i, ev.Index)
	}
}

func TestRead_StopsAtTerminalEvent(t *testing.T) {
	stream := `data: {"type":"error","data":"boom"}

data: {"type":"content","data":"should never arrive"}
`
	var events []StreamEvent
	err := newTestReader().Read(context.Background(), strings.NewReader(stream),
		func(event StreamEvent) error {
			events = append(events, event)
			return nil
		})

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, StreamEventError, events[0].Type)
}

func TestRead_FrameLargerThanDefaultScannerToken(t *testing.T) {
	// A single content frame carrying well over bufio.Scanner's default
	// 64 KiB token limit must still parse.
	big := strings.Repeat("a", 80*1024)
	stream := `data: {"type":"content","data":"` + big + `"}` + "\n\n" +
		`data: {"type":"done","data":{"messageId":"msg-2","tokens":1,"model":"m"}}` + "\n"

	var content strings.Builder
	err := newTestReader().Read(context.Background(), strings.NewReader(stream),
		func(event StreamEvent) error {
			if event.Type == StreamEventContent {
				content.WriteString(event.Content)
			}
			return nil
		})

	require.NoError(t, err, "oversized frames must not overflow the scanner")
	assert.Equal(t, big, content.String())
}

func TestRead_CallbackErrorStops(t *testing.T) {
	wantErr := errors.New("stop here")
	count := 0
	err := newTestReader().Read(context.Background(), strings.NewReader(fullStream),
		func(event StreamEvent) error {
			count++
			if count == 2 {
				return wantErr
			}
			return nil
		})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 2, count)
}

func TestRead_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestReader().Read(ctx, strings.NewReader(fullStream),
		func(event StreamEvent) error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadAll_Success(t *testing.T) {
	result, err := newTestReader().ReadAll(context.Background(), strings.NewReader(fullStream))

	require.NoError(t, err)
	assert.Equal(t, "conv-1", result.ConversationID)
	assert.Equal(t, "msg-1", result.UserMessageID)
	assert.Equal(t, "Hello world", result.Answer)
	require.NotNil(t, result.Done)
	assert.Equal(t, "msg-2", result.Done.MessageID)
	assert.Empty(t, result.Error)
	assert.Equal(t, 5, result.TotalEvents)
	assert.NotZero(t, result.FirstContentAt)
	assert.NotZero(t, result.CompletedAt)
}

func TestReadAll_ErrorEventIsNotAnError(t *testing.T) {
	stream := `data: {"type":"conversation_id","data":"conv-1"}

data: {"type":"error","data":"upstream failed"}
`
	result, err := newTestReader().ReadAll(context.Background(), strings.NewReader(stream))

	require.NoError(t, err)
	assert.Equal(t, "upstream failed", result.Error)
	assert.Nil(t, result.Done)
	assert.Empty(t, result.Answer)
}

func TestReadAll_TruncatedStream(t *testing.T) {
	stream := `data: {"type":"conversation_id","data":"conv-1"}

data: {"type":"content","data":"partial"}
`
	result, err := newTestReader().ReadAll(context.Background(), strings.NewReader(stream))

	require.NoError(t, err)
	assert.Equal(t, "partial", result.Answer)
	assert.Nil(t, result.Done, "no done event on a truncated stream")
	assert.NotZero(t, result.CompletedAt)
}
