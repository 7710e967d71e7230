package pipeline

import (
	"maps"

	"github.com/google/uuid"
)

// Info identifies the pipeline a request belongs to.
type Info struct {
	Name       string
	SourceType string
	Stages     int
}

// Metadata is shared by every request of one Retrieve call.
type Metadata struct {
	CallID   uuid.UUID
	Pipeline Info
}

// Request is a message routed through a pipeline. The concrete kinds are
// *Query, *Retry, *ResultSet, *Deferred and Event implementations; stages
// may define further kinds of their own.
type Request interface {
	Metadata() *Metadata
}

// Querier is a request asking for identifiers. Only a Querier may reach
// the source.
type Querier[K comparable] interface {
	Request
	IDs() []K
}

// Query asks for ids and moves toward the source.
type Query[K comparable] struct {
	meta *Metadata
	ids  []K
}

// NewQuery creates a Query for ids.
func NewQuery[K comparable](meta *Metadata, ids []K) *Query[K] {
	return &Query[K]{meta: meta, ids: ids}
}

func (q *Query[K]) Metadata() *Metadata { return q.meta }

// IDs returns the requested identifiers. The slice must not be modified.
func (q *Query[K]) IDs() []K { return q.ids }

// Retry asks for ids again and moves away from the source. A stage must
// not answer a partially satisfied Retry with another Retry.
type Retry[K comparable] struct {
	meta *Metadata
	ids  []K
}

// NewRetry creates a Retry for ids.
func NewRetry[K comparable](meta *Metadata, ids []K) *Retry[K] {
	return &Retry[K]{meta: meta, ids: ids}
}

func (r *Retry[K]) Metadata() *Metadata { return r.meta }

// IDs returns the requested identifiers. The slice must not be modified.
func (r *Retry[K]) IDs() []K { return r.ids }

// ResultSet carries data flowing back toward the caller.
type ResultSet[K comparable, V any] struct {
	meta *Metadata
	data map[K]V
}

// NewResultSet creates a ResultSet holding a copy of data.
func NewResultSet[K comparable, V any](meta *Metadata, data map[K]V) *ResultSet[K, V] {
	return &ResultSet[K, V]{meta: meta, data: maps.Clone(data)}
}

func (r *ResultSet[K, V]) Metadata() *Metadata { return r.meta }

// Data returns the carried mapping. The map must not be modified.
func (r *ResultSet[K, V]) Data() map[K]V { return r.data }

// Len returns the number of entries carried.
func (r *ResultSet[K, V]) Len() int { return len(r.data) }
