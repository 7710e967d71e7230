package source

import (
	"context"
	"maps"

	"github.com/kbukum/tiered/pipeline"
)

// Map is a static in-memory source. Identifiers it does not hold are
// absent from the result.
type Map[K comparable, V any] struct {
	data map[K]V
}

var _ pipeline.Source[string, any] = (*Map[string, any])(nil)

// NewMap creates a Map over a copy of data.
func NewMap[K comparable, V any](data map[K]V) *Map[K, V] {
	return &Map[K, V]{data: maps.Clone(data)}
}

// Read implements pipeline.Source.
func (m *Map[K, V]) Read(ctx context.Context, q pipeline.Querier[K]) (map[K]V, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[K]V)
	for _, id := range q.IDs() {
		if v, ok := m.data[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}
