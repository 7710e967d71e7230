// Package chunk provides a stage that splits large queries so that the
// stages and source behind it see bounded batches.
package chunk

import (
	"context"
	"fmt"

	"github.com/kbukum/tiered/pipeline"
	"github.com/kbukum/tiered/stage"
)

// Stage splits every Query with more than Size identifiers into
// consecutive Queries of at most Size identifiers. Other requests pass
// through.
type Stage[K comparable] struct {
	stage.Dispatcher
	size int
}

// New creates a chunking stage.
func New[K comparable](size int) (*Stage[K], error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk: size must be positive, got %d", size)
	}
	s := &Stage[K]{size: size}
	stage.Handle(&s.Dispatcher, s.split)
	return s, nil
}

func (s *Stage[K]) split(_ context.Context, q *pipeline.Query[K]) (pipeline.Iterator[pipeline.Request], error) {
	ids := q.IDs()
	if len(ids) <= s.size {
		return pipeline.Of[pipeline.Request](q), nil
	}
	out := make([]pipeline.Request, 0, (len(ids)+s.size-1)/s.size)
	for start := 0; start < len(ids); start += s.size {
		end := min(start+s.size, len(ids))
		out = append(out, pipeline.NewQuery(q.Metadata(), ids[start:end:end]))
	}
	return pipeline.Of(out...), nil
}
