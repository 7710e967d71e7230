// Package redis provides a shared cache tier stored in Redis. Each batch
// is read with one MGET and written back with one pipeline.
package redis

import (
	"context"
	"fmt"
	"time"

	redisclient "github.com/kbukum/tiered/redis"
	"github.com/kbukum/tiered/stage"
)

// DefaultName labels the tier when Config.Name is empty.
const DefaultName = "redis"

// Config configures the Redis tier.
type Config struct {
	// Name labels logs and metrics.
	Name string `mapstructure:"name"`
	// KeyPrefix namespaces the tier's keys.
	KeyPrefix string `mapstructure:"key_prefix"`
	// TTL expires entries after they are written. 0 keeps them.
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// ApplyDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
}

// KeyFunc renders an id as a Redis key suffix.
type KeyFunc[K comparable] func(K) string

// DefaultKey formats ids with fmt.
func DefaultKey[K comparable](id K) string { return fmt.Sprint(id) }

// Store is a stage.Store over a redis.TypedStore.
type Store[K comparable, V any] struct {
	typed *redisclient.TypedStore[V]
	key   KeyFunc[K]
	ttl   time.Duration
}

var (
	_ stage.Store[string, any] = (*Store[string, any])(nil)
	_ stage.Deleter[string]    = (*Store[string, any])(nil)
)

// NewStore creates a Store. A nil key uses DefaultKey.
func NewStore[K comparable, V any](client *redisclient.Client, cfg Config, key KeyFunc[K]) (*Store[K, V], error) {
	if client == nil {
		return nil, fmt.Errorf("redis tier: client is required")
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("redis tier: ttl must not be negative")
	}
	if key == nil {
		key = DefaultKey[K]
	}
	return &Store[K, V]{
		typed: redisclient.NewTypedStore[V](client, cfg.KeyPrefix),
		key:   key,
		ttl:   cfg.TTL,
	}, nil
}

func (s *Store[K, V]) keys(ids []K) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = s.key(id)
	}
	return out
}

// GetMany implements stage.Store.
func (s *Store[K, V]) GetMany(ctx context.Context, ids []K) (map[K]V, error) {
	if len(ids) == 0 {
		return map[K]V{}, nil
	}
	keys := s.keys(ids)
	found, err := s.typed.LoadMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, len(found))
	for i, id := range ids {
		if v, ok := found[keys[i]]; ok {
			out[id] = v
		}
	}
	return out, nil
}

// PutMany implements stage.Store.
func (s *Store[K, V]) PutMany(ctx context.Context, data map[K]V) error {
	if len(data) == 0 {
		return nil
	}
	vals := make(map[string]V, len(data))
	for id, v := range data {
		vals[s.key(id)] = v
	}
	return s.typed.SaveMany(ctx, vals, s.ttl)
}

// DeleteMany implements stage.Deleter.
func (s *Store[K, V]) DeleteMany(ctx context.Context, ids []K) error {
	if len(ids) == 0 {
		return nil
	}
	return s.typed.Delete(ctx, s.keys(ids)...)
}

// New creates a Redis tier over client. A nil key uses DefaultKey.
func New[K comparable, V any](client *redisclient.Client, cfg Config, key KeyFunc[K], opts ...stage.Option) (*stage.Tier[K, V], error) {
	cfg.ApplyDefaults()
	store, err := NewStore[K, V](client, cfg, key)
	if err != nil {
		return nil, err
	}
	return stage.NewTier(cfg.Name, stage.Store[K, V](store), opts...)
}
