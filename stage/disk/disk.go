// Package disk provides a persistent cache tier over a storage.Storage
// backend (the local filesystem or S3). Each entry is one JSON object.
package disk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/kbukum/tiered/stage"
	"github.com/kbukum/tiered/storage"
)

// Default configuration values.
const (
	DefaultName        = "disk"
	DefaultConcurrency = 8
)

// Config configures the disk tier.
type Config struct {
	// Name labels logs and metrics.
	Name string `mapstructure:"name"`
	// Prefix is the directory (or key prefix) entries are written under.
	Prefix string `mapstructure:"prefix"`
	// Concurrency bounds the objects read or written at once.
	Concurrency int `mapstructure:"concurrency" validate:"gte=0"`
}

// ApplyDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Prefix == "" {
		c.Prefix = c.Name
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
}

// Store keeps each entry as a JSON object at Prefix/<escaped id>.json.
type Store[K comparable, V any] struct {
	client storage.ByteClient
	prefix string
	limit  int
}

var (
	_ stage.Store[string, any] = (*Store[string, any])(nil)
	_ stage.Deleter[string]    = (*Store[string, any])(nil)
)

// NewStore creates a Store over backend.
func NewStore[K comparable, V any](backend storage.Storage, cfg Config) (*Store[K, V], error) {
	if backend == nil {
		return nil, fmt.Errorf("disk tier: storage is required")
	}
	cfg.ApplyDefaults()
	return &Store[K, V]{
		client: storage.NewByteClient(backend),
		prefix: cfg.Prefix,
		limit:  cfg.Concurrency,
	}, nil
}

// Path returns the object path id is stored at.
func (s *Store[K, V]) Path(id K) string {
	return path.Join(s.prefix, url.PathEscape(fmt.Sprint(id))+".json")
}

// GetMany implements stage.Store.
func (s *Store[K, V]) GetMany(ctx context.Context, ids []K) (map[K]V, error) {
	var mu sync.Mutex
	out := make(map[K]V, len(ids))

	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(s.limit)
	for _, id := range ids {
		p.Go(func(ctx context.Context) error {
			data, found, err := s.client.Get(ctx, s.Path(id))
			if err != nil || !found {
				return err
			}
			var v V
			if err := json.Unmarshal(data, &v); err != nil {
				return fmt.Errorf("disk tier: decode %v: %w", id, err)
			}
			mu.Lock()
			out[id] = v
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// PutMany implements stage.Store.
func (s *Store[K, V]) PutMany(ctx context.Context, data map[K]V) error {
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(s.limit)
	for id, v := range data {
		p.Go(func(ctx context.Context) error {
			raw, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("disk tier: encode %v: %w", id, err)
			}
			return s.client.Put(ctx, s.Path(id), raw)
		})
	}
	return p.Wait()
}

// DeleteMany implements stage.Deleter. Missing entries are ignored.
func (s *Store[K, V]) DeleteMany(ctx context.Context, ids []K) error {
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(s.limit)
	for _, id := range ids {
		p.Go(func(ctx context.Context) error {
			return s.client.Delete(ctx, s.Path(id))
		})
	}
	return p.Wait()
}

// New creates a disk tier over backend.
func New[K comparable, V any](backend storage.Storage, cfg Config, opts ...stage.Option) (*stage.Tier[K, V], error) {
	cfg.ApplyDefaults()
	store, err := NewStore[K, V](backend, cfg)
	if err != nil {
		return nil, err
	}
	return stage.NewTier(cfg.Name, stage.Store[K, V](store), opts...)
}
