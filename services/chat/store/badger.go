// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/scrivano-ai/scrivano/services/chat/datatypes"
)

// Key layout. Message keys embed a zero-padded creation timestamp plus a
// store-wide monotonic sequence so a plain prefix scan yields messages in
// creation order even when two writes share a millisecond.
//
//	conv:<conversationID>                            -> Conversation JSON
//	msg:<conversationID>:<%020d>:<%012d>:<messageID> -> Message JSON
//	chapter:<chapterID>                              -> Chapter JSON
const (
	convKeyPrefix    = "conv:"
	msgKeyPrefix     = "msg:"
	chapterKeyPrefix = "chapter:"

	msgSeqKey       = "seq:msg"
	msgSeqBandwidth = 128
)

// =============================================================================
// Struct Definition
// =============================================================================

// badgerStore implements Store on top of BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use; Badger transactions provide per-key atomicity.
type badgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
	gc  *gcRunner
}

// =============================================================================
// Constructor
// =============================================================================

// Open opens (or creates) the store described by cfg.
//
// # Inputs
//
//   - cfg: Database configuration. Use InMemoryConfig() for tests.
//
// # Outputs
//
//   - Store: Ready for use. Caller must Close() when done.
//   - error: Non-nil if the database cannot be opened.
func Open(cfg Config) (Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	seq, err := db.GetSequence([]byte(msgSeqKey), msgSeqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open message sequence: %w", err)
	}

	s := &badgerStore{db: db, seq: seq}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		s.gc.start()
	}

	return s, nil
}

// =============================================================================
// Conversations
// =============================================================================

func (s *badgerStore) CreateConversation(ctx context.Context, conv *datatypes.Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("conversation requires an id")
	}
	return s.putJSON(convKey(conv.ID), conv)
}

func (s *badgerStore) GetConversation(ctx context.Context, id string) (*datatypes.Conversation, error) {
	var conv datatypes.Conversation
	if err := s.getJSON(convKey(id), &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *badgerStore) ListConversations(ctx context.Context, userID string) ([]datatypes.Conversation, error) {
	var convs []datatypes.Conversation

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(convKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var conv datatypes.Conversation
				if err := json.Unmarshal(val, &conv); err != nil {
					return fmt.Errorf("decode conversation: %w", err)
				}
				if conv.UserID == userID {
					convs = append(convs, conv)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Most recently updated first.
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt > convs[j].UpdatedAt
	})

	return convs, nil
}

func (s *badgerStore) TouchConversation(ctx context.Context, id string, updatedAt int64) error {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	conv.UpdatedAt = updatedAt
	return s.putJSON(convKey(id), conv)
}

func (s *badgerStore) DeleteConversation(ctx context.Context, id string) error {
	// Collect message keys first; deleting while iterating the same
	// transaction's iterator is unsupported.
	var keys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(msgKeyPrefix + id + ":")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(convKey(id)); err != nil {
			return err
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// Messages
// =============================================================================

func (s *badgerStore) AppendMessage(ctx context.Context, msg *datatypes.Message) error {
	if msg == nil || msg.ID == "" || msg.ConversationID == "" {
		return errors.New("message requires id and conversation id")
	}
	seq, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next message sequence: %w", err)
	}
	return s.putJSON(msgKey(msg.ConversationID, msg.CreatedAt, seq, msg.ID), msg)
}

func (s *badgerStore) ListMessages(ctx context.Context, conversationID string) ([]datatypes.Message, error) {
	var msgs []datatypes.Message

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(msgKeyPrefix + conversationID + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var msg datatypes.Message
				if err := json.Unmarshal(val, &msg); err != nil {
					return fmt.Errorf("decode message: %w", err)
				}
				msgs = append(msgs, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return msgs, nil
}

// =============================================================================
// Chapters
// =============================================================================

func (s *badgerStore) CreateChapter(ctx context.Context, chapter *datatypes.Chapter) error {
	if chapter == nil || chapter.ID == "" {
		return errors.New("chapter requires an id")
	}
	return s.putJSON(chapterKey(chapter.ID), chapter)
}

func (s *badgerStore) GetChapter(ctx context.Context, id string) (*datatypes.Chapter, error) {
	var chapter datatypes.Chapter
	if err := s.getJSON(chapterKey(id), &chapter); err != nil {
		return nil, err
	}
	return &chapter, nil
}

// =============================================================================
// Lifecycle
// =============================================================================

func (s *badgerStore) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("release message sequence: %w", err)
	}
	return s.db.Close()
}

// =============================================================================
// Helpers
// =============================================================================

func convKey(id string) []byte {
	return []byte(convKeyPrefix + id)
}

// msgKey orders messages by creation time, with the sequence breaking ties
// in insertion order. Without the sequence, a tie would fall through to the
// random message id and a user turn could sort after its reply.
func msgKey(conversationID string, createdAt int64, seq uint64, messageID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%012d:%s",
		msgKeyPrefix, conversationID, createdAt, seq, messageID))
}

func chapterKey(id string) []byte {
	return []byte(chapterKeyPrefix + id)
}

func (s *badgerStore) putJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (s *badgerStore) getJSON(key []byte, v any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ Store = (*badgerStore)(nil)
