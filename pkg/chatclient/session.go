// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chatclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/scrivano-ai/scrivano/pkg/ux"
)

// =============================================================================
// Errors and Events
// =============================================================================

// ErrEmptyMessage is returned by Send for blank input, before any request
// is made.
var ErrEmptyMessage = errors.New("message must not be empty")

// ErrStreamTruncated is returned by Send when the stream closes cleanly
// without a terminal done or error event. The reply never completed and
// the transcript is rolled back as for a transport failure.
var ErrStreamTruncated = errors.New("stream ended before completion")

// ServerError is a terminal error event raised by the server mid-stream.
// The user message stays in the transcript; it was already persisted
// server-side before generation began.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// SessionEventType identifies a session state transition.
type SessionEventType string

const (
	// SessionEventMessagesChanged fires on any transcript mutation other
	// than a content delta: optimistic insert, remap, rollback, reload.
	SessionEventMessagesChanged SessionEventType = "messages_changed"

	// SessionEventDelta fires for each content chunk appended to the
	// streaming assistant message.
	SessionEventDelta SessionEventType = "delta"

	// SessionEventDone fires after the transcript has been reconciled
	// with the server following a done event.
	SessionEventDone SessionEventType = "done"

	// SessionEventFailed fires when a send ends in any error.
	SessionEventFailed SessionEventType = "failed"
)

// SessionEvent is delivered to the session observer.
type SessionEvent struct {
	Type SessionEventType

	// Delta is the content chunk for SessionEventDelta.
	Delta string

	// Err is set for SessionEventFailed.
	Err error
}

// =============================================================================
// Session
// =============================================================================

// Session drives the client side of a streaming conversation.
//
// It maintains an optimistic local transcript: the user message appears
// immediately on Send, gets its identifier remapped when the server
// confirms persistence, and the assistant reply grows in place as content
// arrives. After a successful stream the transcript is silently replaced
// with the server's authoritative copy.
//
// A new Send supersedes any stream still in flight for the same
// conversation; the superseded send unwinds and rolls back its own
// unconfirmed messages.
//
// # Thread Safety
//
// Safe for concurrent use. Send blocks until the stream terminates.
type Session struct {
	client *Client
	guard  *StreamGuard
	reader ux.StreamReader

	// mode and model are immutable after construction.
	mode  string
	model string

	mu             sync.Mutex
	conversationID string
	messages       []Message
	lastSent       string
	cancelCurrent  context.CancelFunc
	observer       func(SessionEvent)
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// ConversationID resumes an existing conversation. Empty starts new.
	ConversationID string

	// Mode and Model are forwarded on every send.
	Mode  string
	Model string

	// OnEvent observes session state transitions. Called synchronously
	// from the sending goroutine; must not block. May be nil.
	OnEvent func(SessionEvent)
}

// NewSession creates a session bound to a transport. Panics if client is
// nil.
func NewSession(client *Client, opts SessionOptions) *Session {
	if client == nil {
		panic("chatclient: client must not be nil")
	}

	return &Session{
		client:         client,
		guard:          NewStreamGuard(),
		reader:         ux.NewSSEStreamReader(ux.NewSSEParser()),
		conversationID: opts.ConversationID,
		mode:           opts.Mode,
		model:          opts.Model,
		observer:       opts.OnEvent,
	}
}

// =============================================================================
// Accessors
// =============================================================================

// ConversationID returns the current conversation identifier, empty until
// the server assigns one.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Messages returns a snapshot of the local transcript.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// LastAssistantText returns the content of the most recent assistant
// message, for copying or exporting a reply. The second return is false
// when no assistant message exists yet.
func (s *Session) LastAssistantText() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleAssistant {
			return s.messages[i].Content, true
		}
	}
	return "", false
}

// Close aborts any in-flight stream.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancelCurrent
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// =============================================================================
// Send
// =============================================================================

// Send submits a user message and blocks until the stream terminates.
//
// Blank input returns ErrEmptyMessage with no side effects. If a stream is
// already in flight for this conversation it is superseded: cancelled and
// rolled back, so the newest input wins.
//
// On success the transcript reflects the server's authoritative state. On
// failure the transcript is rolled back to a consistent state and the error
// describes what the caller may surface; a *ServerError means the user
// message was persisted server-side and is kept locally.
func (s *Session) Send(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	convID := s.conversationID
	s.lastSent = content
	s.cancelCurrent = cancel
	s.mu.Unlock()

	handle := s.guard.Supersede(convID, cancel)
	defer s.guard.Release(convID, handle)

	// Optimistic insert: the user sees their message immediately.
	tempUser := TemporaryMessageID()
	s.appendMessage(Message{ID: tempUser, Role: RoleUser, Content: content})

	err := s.runStream(streamCtx, convID, content, tempUser)
	if err != nil {
		s.notify(SessionEvent{Type: SessionEventFailed, Err: err})
	}
	return err
}

// Retry resends the last submitted message. Intended for use after a
// failed send; the rolled-back message goes through the full pipeline
// again.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	content := s.lastSent
	s.mu.Unlock()

	if content == "" {
		return ErrEmptyMessage
	}
	return s.Send(ctx, content)
}

// runStream opens the stream and folds its events into the transcript.
func (s *Session) runStream(ctx context.Context, convID, content string, userID MessageID) error {
	body, err := s.client.OpenStream(ctx, SendRequest{
		ConversationID: convID,
		Message:        content,
		Mode:           s.mode,
		Model:          s.model,
	})
	if err != nil {
		// Nothing reached the server; the optimistic message goes away.
		s.removeMessage(userID)
		return fmt.Errorf("send failed: %w", err)
	}
	defer body.Close()

	currentUserID := userID
	var streamingID MessageID
	var serverErr *ServerError
	var doneConvID string
	var sawTerminal bool

	readErr := s.reader.Read(ctx, body, func(event ux.StreamEvent) error {
		switch event.Type {
		case ux.StreamEventConversationID:
			doneConvID = event.ConversationID
			s.mu.Lock()
			s.conversationID = event.ConversationID
			s.mu.Unlock()

		case ux.StreamEventUserMessageID:
			// Remap once: the optimistic message adopts the canonical
			// identity without moving position.
			canonical := CanonicalMessageID(event.UserMessageID)
			s.replaceMessageID(currentUserID, canonical)
			currentUserID = canonical
			s.notify(SessionEvent{Type: SessionEventMessagesChanged})

		case ux.StreamEventContent:
			if streamingID.IsZero() {
				streamingID = TemporaryMessageID()
				s.appendMessage(Message{ID: streamingID, Role: RoleAssistant, Streaming: true})
			}
			s.appendContent(streamingID, event.Content)
			s.notify(SessionEvent{Type: SessionEventDelta, Delta: event.Content})

		case ux.StreamEventDone:
			// Reconciliation happens after the read loop.
			sawTerminal = true

		case ux.StreamEventError:
			serverErr = &ServerError{Message: event.Error}
			sawTerminal = true
		}
		return nil
	})

	if readErr != nil {
		// Transport died mid-stream. Both unconfirmed messages are rolled
		// back; a remapped user message is canonical and stays.
		s.rollback(currentUserID, streamingID)
		return fmt.Errorf("stream interrupted: %w", readErr)
	}

	if !sawTerminal {
		// Clean EOF with no done or error event means the connection was
		// cut before the reply completed. Treated like a transport failure,
		// not a success.
		s.rollback(currentUserID, streamingID)
		return ErrStreamTruncated
	}

	if serverErr != nil {
		// The server persisted the user message before failing; only the
		// half-built assistant message is removed.
		if !streamingID.IsZero() {
			s.removeMessage(streamingID)
			s.notify(SessionEvent{Type: SessionEventMessagesChanged})
		}
		return serverErr
	}

	// Silent reload: replace the transcript wholesale with the server's
	// copy. No flicker events between removal and reinsertion.
	if doneConvID != "" {
		if err := s.reconcile(ctx, doneConvID); err != nil {
			// The stream itself succeeded; stale local state is preferable
			// to reporting failure. Temporary flags still get cleared.
			s.clearStreaming(streamingID)
		}
	}

	s.notify(SessionEvent{Type: SessionEventDone})
	return nil
}

// reconcile fetches the authoritative transcript and swaps it in.
func (s *Session) reconcile(ctx context.Context, convID string) error {
	serverMsgs, err := s.client.FetchMessages(ctx, convID)
	if err != nil {
		return err
	}

	fresh := make([]Message, 0, len(serverMsgs))
	for _, m := range serverMsgs {
		fresh = append(fresh, Message{
			ID:      CanonicalMessageID(m.ID),
			Role:    m.Role,
			Content: m.Content,
		})
	}

	s.mu.Lock()
	s.messages = fresh
	s.mu.Unlock()
	s.notify(SessionEvent{Type: SessionEventMessagesChanged})
	return nil
}

// =============================================================================
// Transcript Mutations
// =============================================================================

func (s *Session) appendMessage(msg Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify(SessionEvent{Type: SessionEventMessagesChanged})
}

func (s *Session) appendContent(id MessageID, delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID.Equal(id) {
			s.messages[i].Content += delta
			return
		}
	}
}

func (s *Session) replaceMessageID(oldID, newID MessageID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID.Equal(oldID) {
			s.messages[i].ID = newID
			return
		}
	}
}

func (s *Session) removeMessage(id MessageID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID.Equal(id) {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// rollback undoes the optimistic state of a failed send. The user message
// is removed only while still temporary; once remapped it exists
// server-side and removing it would desync the transcript.
func (s *Session) rollback(userID, streamingID MessageID) {
	if userID.IsTemporary() {
		s.removeMessage(userID)
	}
	if !streamingID.IsZero() {
		s.removeMessage(streamingID)
	}
	s.notify(SessionEvent{Type: SessionEventMessagesChanged})
}

func (s *Session) clearStreaming(id MessageID) {
	if id.IsZero() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID.Equal(id) {
			s.messages[i].Streaming = false
			return
		}
	}
}

func (s *Session) notify(event SessionEvent) {
	if s.observer != nil {
		s.observer(event)
	}
}
