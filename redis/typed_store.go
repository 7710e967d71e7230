package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TypedStore provides typed JSON-serialized get/set operations on Redis.
type TypedStore[V any] struct {
	client    *Client
	keyPrefix string
}

// NewTypedStore creates a TypedStore backed by the given Redis client.
// All keys are prefixed with keyPrefix followed by a colon separator.
func NewTypedStore[V any](client *Client, keyPrefix string) *TypedStore[V] {
	return &TypedStore[V]{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *TypedStore[V]) fullKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + ":" + key
}

func (s *TypedStore[V]) fullKeys(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = s.fullKey(k)
	}
	return out
}

// Load deserializes JSON from Redis. Returns (nil, nil) if key doesn't exist.
func (s *TypedStore[V]) Load(ctx context.Context, key string) (*V, error) {
	var val V
	if err := s.client.GetJSON(ctx, s.fullKey(key), &val); err != nil {
		if errors.Is(err, Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("typed store load %q: %w", key, err)
	}
	return &val, nil
}

// LoadMany fetches keys with a single MGET. Missing keys are absent from
// the result.
func (s *TypedStore[V]) LoadMany(ctx context.Context, keys []string) (map[string]V, error) {
	raw, found, err := s.client.MGet(ctx, s.fullKeys(keys)...)
	if err != nil {
		return nil, fmt.Errorf("typed store load many: %w", err)
	}
	out := make(map[string]V, len(keys))
	for i, key := range keys {
		if !found[i] {
			continue
		}
		var val V
		if err := json.Unmarshal([]byte(raw[i]), &val); err != nil {
			return nil, fmt.Errorf("typed store unmarshal %q: %w", key, err)
		}
		out[key] = val
	}
	return out, nil
}

// Save serializes to JSON and stores with TTL. TTL of 0 means no expiration.
func (s *TypedStore[V]) Save(ctx context.Context, key string, val *V, ttl time.Duration) error {
	if err := s.client.SetJSON(ctx, s.fullKey(key), val, ttl); err != nil {
		return fmt.Errorf("typed store save %q: %w", key, err)
	}
	return nil
}

// SaveMany serializes every value and writes them in one pipeline.
func (s *TypedStore[V]) SaveMany(ctx context.Context, vals map[string]V, ttl time.Duration) error {
	entries := make(map[string]string, len(vals))
	for key, val := range vals {
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("typed store marshal %q: %w", key, err)
		}
		entries[s.fullKey(key)] = string(data)
	}
	if err := s.client.SetMany(ctx, entries, ttl); err != nil {
		return fmt.Errorf("typed store save many: %w", err)
	}
	return nil
}

// Delete removes the keys.
func (s *TypedStore[V]) Delete(ctx context.Context, keys ...string) error {
	if err := s.client.Del(ctx, s.fullKeys(keys)...); err != nil {
		return fmt.Errorf("typed store delete: %w", err)
	}
	return nil
}
