package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
)

const storeKeyPrefix = "voice_outbox:"

// KV abstracts the durable string-keyed substrate so the record store can
// run on valkey or postgres without caring which
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
}

// RecordStore persists the full per-chat record list. Write replaces the
// whole list; readers never observe a partial write.
type RecordStore interface {
	Read(ctx context.Context, chatID string) ([]*Record, error)
	Write(ctx context.Context, chatID string, recs []*Record) error
}

// KVRecordStore keeps each chat's records as a JSON array under one key
type KVRecordStore struct {
	kv  KV
	log *log.Logger
}

func NewKVRecordStore(kv KV, logger *log.Logger) *KVRecordStore {
	return &KVRecordStore{
		kv:  kv,
		log: logger,
	}
}

// StoreKey builds the persisted key for a chat's record list
func StoreKey(chatID string) string {
	return storeKeyPrefix + chatID
}

// Read loads a chat's record list. A missing key yields an empty list, and
// so does a value that fails to decode: a fresh chat or a corrupted entry
// must never block the pipeline.
func (s *KVRecordStore) Read(ctx context.Context, chatID string) ([]*Record, error) {
	value, found, err := s.kv.Get(ctx, StoreKey(chatID))
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox for chat %s: %w", chatID, err)
	}

	if !found {
		return []*Record{}, nil
	}

	var recs []*Record
	if err := json.Unmarshal([]byte(value), &recs); err != nil {
		s.log.Warn(
			"Discarding corrupt outbox entry",
			"chat_id", chatID,
			"error", err,
		)
		return []*Record{}, nil
	}

	return recs, nil
}

// Write replaces the persisted list for a chat
func (s *KVRecordStore) Write(ctx context.Context, chatID string, recs []*Record) error {
	if recs == nil {
		recs = []*Record{}
	}

	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox for chat %s: %w", chatID, err)
	}

	if err := s.kv.Set(ctx, StoreKey(chatID), string(data)); err != nil {
		return fmt.Errorf("failed to write outbox for chat %s: %w", chatID, err)
	}

	return nil
}
