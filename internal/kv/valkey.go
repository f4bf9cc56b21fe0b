package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// Store is the valkey-backed durable string-keyed store used for outbox
// persistence. Keys carry no TTL: outbox entries live until deleted.
type Store struct {
	client valkey.Client
}

// NewStore connects to valkey and verifies the connection with a ping
func NewStore(addr, password string) (*Store, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
		Password:    password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pingCmd := client.B().Ping().Build()
	if err := client.Do(ctx, pingCmd).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}

	return &Store{client: client}, nil
}

// Get retrieves a value. The second return reports whether the key exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	getCmd := s.client.B().Get().Key(key).Build()

	result := s.client.Do(ctx, getCmd)

	if err := result.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	value, err := result.ToString()
	if err != nil {
		return "", false, fmt.Errorf("failed to parse value for key %s: %w", key, err)
	}

	return value, true, nil
}

// Set stores a value without expiration
func (s *Store) Set(ctx context.Context, key, value string) error {
	setCmd := s.client.B().Set().
		Key(key).
		Value(value).
		Build()

	if err := s.client.Do(ctx, setCmd).Error(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	return nil
}

// Del removes a key
func (s *Store) Del(ctx context.Context, key string) error {
	delCmd := s.client.B().Del().Key(key).Build()

	if err := s.client.Do(ctx, delCmd).Error(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	return nil
}

// Close closes the client connection
func (s *Store) Close() {
	s.client.Close()
}
