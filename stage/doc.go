// Package stage holds the building blocks for pipeline stages.
//
// Dispatcher routes each request and event to a handler registered for its
// exact concrete type and passes everything else through unchanged:
//
//	var d stage.Dispatcher
//	stage.Handle(&d, func(ctx context.Context, q *pipeline.Query[int]) (pipeline.Iterator[pipeline.Request], error) {
//	    return pipeline.Of[pipeline.Request](q), nil
//	})
//
// Tier turns any Store into a cache stage: queries are split into hits and
// misses, retries are answered from the store, and result sets flowing back
// from the source are written before being passed on.
//
// Ready-made stages live in the subpackages:
//
//   - memory: in-process W-TinyLFU cache
//   - redis: shared cache in Redis
//   - disk: persistent cache over package storage
//   - throttle: token-bucket pacing through deferred requests
//   - chunk: splits large queries
//   - observe: logs and counts traffic
package stage
