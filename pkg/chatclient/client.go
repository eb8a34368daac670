// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// Wire Types
// =============================================================================

// SendRequest is the body of POST /v1/chat/stream.
type SendRequest struct {
	ConversationID     string   `json:"conversationId,omitempty"`
	Message            string   `json:"message"`
	SelectedContextIDs []string `json:"selectedContextIds,omitempty"`
	Mode               string   `json:"mode,omitempty"`
	Model              string   `json:"model,omitempty"`
}

// ServerMessage is a persisted message as returned by the server.
type ServerMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Model          string `json:"model,omitempty"`
	Tokens         int    `json:"tokens,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
}

// ConversationSummary is one entry of the conversation list.
type ConversationSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// TransportError reports a non-2xx HTTP response.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Body)
}

// =============================================================================
// Client
// =============================================================================

// Client is the HTTP transport for the scrivano chat API.
//
// OpenStream deliberately has no client-side timeout; generation can take
// minutes and the server sends keepalives. Cancellation happens through the
// context.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a transport for the given server. token may be empty
// for tokenless local access.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
	}
}

// OpenStream starts a streaming send and returns the raw SSE body.
//
// The caller owns the returned ReadCloser and must close it. A non-2xx
// response is drained, closed, and returned as a *TransportError.
func (c *Client) OpenStream(ctx context.Context, req SendRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	c.setAuth(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.drainError(resp)
	}

	return resp.Body, nil
}

// FetchMessages returns the authoritative message list for a conversation.
func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]ServerMessage, error) {
	var payload struct {
		Messages []ServerMessage `json:"messages"`
	}
	if err := c.getJSON(ctx, "/v1/conversations/"+conversationID+"/messages", &payload); err != nil {
		return nil, err
	}
	return payload.Messages, nil
}

// ListConversations returns the caller's conversations, most recent first.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	var payload struct {
		Conversations []ConversationSummary `json:"conversations"`
	}
	if err := c.getJSON(ctx, "/v1/conversations", &payload); err != nil {
		return nil, err
	}
	return payload.Conversations, nil
}

// DeleteConversation removes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/v1/conversations/"+conversationID, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.drainError(resp)
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.drainError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// drainError reads a bounded amount of the error body and closes it.
func (c *Client) drainError(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &TransportError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
