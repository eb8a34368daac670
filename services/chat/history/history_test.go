// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrivano-ai/scrivano/services/chat/datatypes"
	"github.com/scrivano-ai/scrivano/services/chat/store"
)

func newTestLoader(t *testing.T) (Loader, store.Store) {
	t.Helper()

	st, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return NewLoader(st), st
}

func appendMessages(t *testing.T, st store.Store, convID string, count int) {
	t.Helper()

	for i := 0; i < count; i++ {
		role := datatypes.RoleUser
		if i%2 == 1 {
			role = datatypes.RoleAssistant
		}
		require.NoError(t, st.AppendMessage(context.Background(), &datatypes.Message{
			ID:             uuid.New().String(),
			ConversationID: convID,
			Role:           role,
			Content:        fmt.Sprintf("message %d", i),
			CreatedAt:      int64(1000 + i),
		}))
	}
}

// TestLoad_Empty verifies an empty conversation yields an empty prompt.
func TestLoad_Empty(t *testing.T) {
	l, _ := newTestLoader(t)

	msgs, err := l.Load(context.Background(), uuid.New().String())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

// TestLoad_ProjectsRoleAndContent verifies the projection keeps order,
// role, and content.
func TestLoad_ProjectsRoleAndContent(t *testing.T) {
	l, st := newTestLoader(t)
	convID := uuid.New().String()
	appendMessages(t, st, convID, 4)

	msgs, err := l.Load(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, datatypes.RoleUser, msgs[0].Role)
	assert.Equal(t, "message 0", msgs[0].Content)
	assert.Equal(t, datatypes.RoleAssistant, msgs[3].Role)
	assert.Equal(t, "message 3", msgs[3].Content)
}

// TestLoad_TruncatesToMostRecent verifies the bound keeps the newest
// messages and drops the oldest.
func TestLoad_TruncatesToMostRecent(t *testing.T) {
	l, st := newTestLoader(t)
	convID := uuid.New().String()
	appendMessages(t, st, convID, MaxMessages+7)

	msgs, err := l.Load(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, msgs, MaxMessages)

	// The oldest 7 messages must be gone; the newest must be last.
	assert.Equal(t, "message 7", msgs[0].Content)
	assert.Equal(t, fmt.Sprintf("message %d", MaxMessages+6), msgs[len(msgs)-1].Content)
}
