package source

import (
	"context"

	"github.com/kbukum/tiered/pipeline"
	"github.com/kbukum/tiered/resilience"
)

// ResilienceConfig selects the protections applied by WithResilience. A
// nil field disables that protection.
type ResilienceConfig struct {
	RateLimit *resilience.RateLimiterConfig    `mapstructure:"rate_limit"`
	Breaker   *resilience.CircuitBreakerConfig `mapstructure:"breaker"`
	Retry     *resilience.RetryConfig          `mapstructure:"retry"`
}

// WithResilience wraps src so that every attempt first waits on the rate
// limiter, then passes the circuit breaker, and the whole sequence is
// retried with exponential backoff. An open breaker yields a
// SOURCE_UNAVAILABLE error, which is retryable, so retries also give the
// breaker time to half-open.
func WithResilience[K comparable, V any](src pipeline.Source[K, V], cfg ResilienceConfig) pipeline.Source[K, V] {
	var (
		limiter *resilience.RateLimiter
		breaker *resilience.CircuitBreaker
	)
	if cfg.RateLimit != nil {
		limiter = resilience.NewRateLimiter(*cfg.RateLimit)
	}
	if cfg.Breaker != nil {
		breaker = resilience.NewCircuitBreaker(*cfg.Breaker)
	}

	attempt := func(ctx context.Context, q pipeline.Querier[K]) (map[K]V, error) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		if breaker == nil {
			return src.Read(ctx, q)
		}
		var out map[K]V
		err := breaker.Execute(func() error {
			var err error
			out, err = src.Read(ctx, q)
			return err
		})
		return out, err
	}

	return pipeline.SourceFunc[K, V](func(ctx context.Context, q pipeline.Querier[K]) (map[K]V, error) {
		if cfg.Retry == nil {
			return attempt(ctx, q)
		}
		return resilience.Retry(ctx, *cfg.Retry, func() (map[K]V, error) {
			return attempt(ctx, q)
		})
	})
}
