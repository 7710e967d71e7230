// Package resilience provides the fault-tolerance building blocks used in
// front of slow or flaky backends.
//
//   - CircuitBreaker: fails fast with SOURCE_UNAVAILABLE while a backend is unhealthy
//   - Retry: retries failed operations with exponential backoff (cenkalti/backoff)
//   - Bulkhead: limits concurrent calls (x/sync/semaphore)
//   - RateLimiter: token bucket limiting (x/time/rate)
//
// The patterns compose. A source read guarded by all of them looks like:
//
//	cb := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("db"))
//	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{Name: "db", Rate: 100, Burst: 20})
//
//	rows, err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() (map[string]Row, error) {
//	    if err := rl.Wait(ctx); err != nil {
//	        return nil, err
//	    }
//	    var out map[string]Row
//	    err := cb.Execute(func() error {
//	        var err error
//	        out, err = db.Read(ctx, ids)
//	        return err
//	    })
//	    return out, err
//	})
package resilience
