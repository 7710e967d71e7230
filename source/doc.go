// Package source provides pipeline.Source implementations and wrappers.
//
// Wrappers compose from the inside out; a typical production source is
//
//	src := source.Instrument("orders", source.Bounded(
//	    source.WithResilience(db, source.ResilienceConfig{...}),
//	    resilience.BulkheadConfig{MaxConcurrent: 4},
//	), log, metrics)
//
// Failures produced by the wrappers are AppErrors: SOURCE_UNAVAILABLE for an
// open breaker or a full bulkhead, RATE_LIMITED for a rejected rate limit
// wait. Cancellation of the caller's context is always returned unchanged
// so the pipeline can recognise it.
package source
