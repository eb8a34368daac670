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
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// openAIClient implements Client against any OpenAI-compatible endpoint.
type openAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a gateway client from per-request credentials.
//
// The client is stateless; construct a fresh one per request rather than
// caching it across users.
func NewOpenAIClient(creds Credentials) Client {
	cfg := openai.DefaultConfig(creds.APIKey)
	if creds.BaseURL != "" {
		cfg.BaseURL = creds.BaseURL
	}
	return &openAIClient{client: openai.NewClientWithConfig(cfg)}
}

// Complete performs a single-shot chat completion.
func (c *openAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req, false))
	if err != nil {
		return "", mapUpstreamError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &UpstreamError{Message: "upstream returned no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream performs a streaming chat completion, relaying each delta.
func (c *openAIClient) CompleteStream(ctx context.Context, req CompletionRequest, onDelta OnDelta) (StreamStats, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
	if err != nil {
		return StreamStats{}, mapUpstreamError(err)
	}
	defer stream.Close()

	var stats StreamStats
	deltaCount := 0

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, mapUpstreamError(err)
		}

		if resp.Model != "" {
			stats.Model = resp.Model
		}
		if resp.Usage != nil {
			stats.Tokens = resp.Usage.CompletionTokens
		}

		if len(resp.Choices) == 0 {
			continue
		}
		content := resp.Choices[0].Delta.Content
		if content == "" {
			continue
		}

		deltaCount++
		if err := onDelta(Delta{Content: content}); err != nil {
			return stats, err
		}
	}

	// Fall back to the delta count when the upstream reported no usage.
	if stats.Tokens == 0 {
		stats.Tokens = deltaCount
	}

	return stats, nil
}

func (c *openAIClient) buildRequest(req CompletionRequest, streaming bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if streaming {
		out.Stream = true
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	return out
}

// mapUpstreamError converts go-openai errors into *UpstreamError so the
// handlers can distinguish upstream failures from everything else.
func mapUpstreamError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{
			Status:  apiErr.HTTPStatusCode,
			Message: fmt.Sprintf("%v", apiErr.Message),
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &UpstreamError{Message: err.Error()}
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ Client = (*openAIClient)(nil)
