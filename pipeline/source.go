package pipeline

import "context"

// Source is the authoritative store at the end of the chain. Read may
// return a partial mapping for identifiers it does not know.
type Source[K comparable, V any] interface {
	Read(ctx context.Context, q Querier[K]) (map[K]V, error)
}

// SourceFunc adapts a function into a Source.
type SourceFunc[K comparable, V any] func(ctx context.Context, q Querier[K]) (map[K]V, error)

// Read calls f.
func (f SourceFunc[K, V]) Read(ctx context.Context, q Querier[K]) (map[K]V, error) {
	return f(ctx, q)
}
