// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains stream readers that consume io.Reader sources and emit
// parsed events via callbacks. Readers handle I/O and event sequencing; they
// use parsers for decoding and do not render output.
package ux

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"
)

// =============================================================================
// Stream Reader Interface
// =============================================================================

// StreamReader reads streaming responses and invokes callbacks.
//
// A single Read or ReadAll operation must not be called concurrently on the
// same reader instance.
//
// Example:
//
//	reader := NewSSEStreamReader(NewSSEParser())
//	err := reader.Read(ctx, resp.Body, func(event StreamEvent) error {
//	    if event.Type == StreamEventContent {
//	        fmt.Print(event.Content)
//	    }
//	    return nil
//	})
type StreamReader interface {
	// Read processes a stream, invoking callback for each event.
	//
	// The stream is considered complete when EOF is reached, a terminal
	// event (done/error) is received, the context is cancelled, or the
	// callback returns an error.
	Read(ctx context.Context, r io.Reader, callback StreamCallback) error

	// ReadAll reads the entire stream and returns the aggregated result.
	//
	// If the stream ends with an error event, the message is captured in
	// StreamResult.Error and this method returns nil.
	ReadAll(ctx context.Context, r io.Reader) (*StreamResult, error)
}

// =============================================================================
// SSE Stream Reader
// =============================================================================

// Scanner buffer sizing. A content frame can carry a full 64 KiB message
// after JSON escaping, which overflows bufio.Scanner's default 64 KiB token
// limit; the cap leaves ample headroom above the protocol's message limit.
const (
	scannerInitialBuffer = 64 * 1024
	scannerMaxBuffer     = 1024 * 1024
)

type sseStreamReader struct {
	parser SSEParser
}

// NewSSEStreamReader creates a reader for the SSE wire format.
func NewSSEStreamReader(parser SSEParser) StreamReader {
	return &sseStreamReader{parser: parser}
}

func (r *sseStreamReader) Read(ctx context.Context, reader io.Reader, callback StreamCallback) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, scannerInitialBuffer), scannerMaxBuffer)
	eventIndex := 0

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event, err := r.parser.ParseLine(scanner.Text())
		if err != nil {
			return err
		}
		if event == nil {
			continue
		}

		event.Index = eventIndex
		eventIndex++

		if err := callback(*event); err != nil {
			return err
		}

		if event.IsTerminal() {
			return nil
		}
	}

	return scanner.Err()
}

func (r *sseStreamReader) ReadAll(ctx context.Context, reader io.Reader) (*StreamResult, error) {
	result := &StreamResult{}
	var answer strings.Builder

	err := r.Read(ctx, reader, func(event StreamEvent) error {
		result.TotalEvents++

		switch event.Type {
		case StreamEventConversationID:
			result.ConversationID = event.ConversationID

		case StreamEventUserMessageID:
			result.UserMessageID = event.UserMessageID

		case StreamEventContent:
			if result.FirstContentAt == 0 {
				result.FirstContentAt = time.Now().UnixMilli()
			}
			answer.WriteString(event.Content)

		case StreamEventDone:
			result.Done = event.Done
			result.CompletedAt = time.Now().UnixMilli()

		case StreamEventError:
			result.Error = event.Error
			result.CompletedAt = time.Now().UnixMilli()
		}

		return nil
	})

	result.Answer = answer.String()
	if result.CompletedAt == 0 {
		result.CompletedAt = time.Now().UnixMilli()
	}

	return result, err
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ StreamReader = (*sseStreamReader)(nil)
