// Package memory provides the in-process cache tier, backed by a
// theine (W-TinyLFU) cache.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Yiling-J/theine-go"

	"github.com/kbukum/tiered/stage"
)

// Default configuration values.
const (
	DefaultName     = "memory"
	DefaultCapacity = int64(10_000)
)

// Config configures the memory tier.
type Config struct {
	// Name labels logs and metrics.
	Name string `mapstructure:"name"`
	// Capacity is the maximum number of entries.
	Capacity int64 `mapstructure:"capacity" validate:"gte=0"`
	// TTL expires entries after they are written. 0 keeps them until evicted.
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// ApplyDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.TTL < 0 {
		return fmt.Errorf("memory: ttl must not be negative")
	}
	return nil
}

// Store is a bounded in-memory stage.Store.
type Store[K comparable, V any] struct {
	cache *theine.Cache[K, V]
	ttl   time.Duration
}

var (
	_ stage.Store[string, any] = (*Store[string, any])(nil)
	_ stage.Deleter[string]    = (*Store[string, any])(nil)
)

// NewStore creates a Store.
func NewStore[K comparable, V any](cfg Config) (*Store[K, V], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cache, err := theine.NewBuilder[K, V](cfg.Capacity).Build()
	if err != nil {
		return nil, fmt.Errorf("memory: build cache: %w", err)
	}
	return &Store[K, V]{cache: cache, ttl: cfg.TTL}, nil
}

// GetMany implements stage.Store.
func (s *Store[K, V]) GetMany(_ context.Context, ids []K) (map[K]V, error) {
	out := make(map[K]V)
	for _, id := range ids {
		if v, ok := s.cache.Get(id); ok {
			out[id] = v
		}
	}
	return out, nil
}

// PutMany implements stage.Store. Entries the admission policy rejects
// are dropped silently.
func (s *Store[K, V]) PutMany(_ context.Context, data map[K]V) error {
	for k, v := range data {
		if s.ttl > 0 {
			s.cache.SetWithTTL(k, v, 1, s.ttl)
		} else {
			s.cache.Set(k, v, 1)
		}
	}
	return nil
}

// DeleteMany implements stage.Deleter.
func (s *Store[K, V]) DeleteMany(_ context.Context, ids []K) error {
	for _, id := range ids {
		s.cache.Delete(id)
	}
	return nil
}

// Len returns the number of cached entries.
func (s *Store[K, V]) Len() int { return s.cache.Len() }

// Close stops the cache's background maintenance.
func (s *Store[K, V]) Close() { s.cache.Close() }

// Stage is the memory tier.
type Stage[K comparable, V any] struct {
	*stage.Tier[K, V]
	store *Store[K, V]
}

// New creates a memory tier.
func New[K comparable, V any](cfg Config, opts ...stage.Option) (*Stage[K, V], error) {
	cfg.ApplyDefaults()
	store, err := NewStore[K, V](cfg)
	if err != nil {
		return nil, err
	}
	tier, err := stage.NewTier(cfg.Name, stage.Store[K, V](store), opts...)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &Stage[K, V]{Tier: tier, store: store}, nil
}

// Store returns the backing store.
func (s *Stage[K, V]) Store() *Store[K, V] { return s.store }

// Close releases the cache.
func (s *Stage[K, V]) Close() error {
	s.store.Close()
	return nil
}
