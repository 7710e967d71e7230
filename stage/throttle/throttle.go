// Package throttle provides a stage that paces requests through a token
// bucket. Each Query and Retry is held in a pipeline.Deferred until the
// limiter admits it, so waiting never blocks the stage itself.
package throttle

import (
	"context"

	"github.com/kbukum/tiered/logger"
	"github.com/kbukum/tiered/pipeline"
	"github.com/kbukum/tiered/resilience"
	"github.com/kbukum/tiered/stage"
)

// Config configures a Stage.
type Config struct {
	resilience.RateLimiterConfig `mapstructure:",squash"`
	// PerID charges one token per identifier instead of one per request.
	// A request is never charged more than the burst.
	PerID bool `mapstructure:"per_id"`
}

// Stage throttles Query and Retry requests.
type Stage[K comparable] struct {
	stage.Dispatcher
	limiter *resilience.RateLimiter
	perID   bool
	log     *logger.Logger
}

// New creates a throttle stage.
func New[K comparable](cfg Config, log *logger.Logger) *Stage[K] {
	if cfg.Name == "" {
		cfg.Name = "throttle"
	}
	if log == nil {
		log = logger.Get("stage.throttle")
	}
	s := &Stage[K]{
		limiter: resilience.NewRateLimiter(cfg.RateLimiterConfig),
		perID:   cfg.PerID,
		log:     log.WithComponent(cfg.Name),
	}
	stage.Handle(&s.Dispatcher, func(ctx context.Context, q *pipeline.Query[K]) (pipeline.Iterator[pipeline.Request], error) {
		return s.hold(ctx, q, len(q.IDs())), nil
	})
	stage.Handle(&s.Dispatcher, func(ctx context.Context, r *pipeline.Retry[K]) (pipeline.Iterator[pipeline.Request], error) {
		return s.hold(ctx, r, len(r.IDs())), nil
	})
	return s
}

// Limiter returns the underlying limiter.
func (s *Stage[K]) Limiter() *resilience.RateLimiter { return s.limiter }

func (s *Stage[K]) hold(ctx context.Context, req pipeline.Querier[K], ids int) pipeline.Iterator[pipeline.Request] {
	cost := 1
	if s.perID {
		cost = min(max(ids, 1), s.limiter.Burst())
	}
	d := pipeline.Defer(ctx, req.Metadata(), func(ctx context.Context) ([]pipeline.Request, error) {
		if err := s.limiter.WaitN(ctx, cost); err != nil {
			if ctx.Err() == nil {
				s.log.Warn("request rejected by limiter", logger.ErrorFields("wait", err))
			}
			return nil, err
		}
		return []pipeline.Request{req}, nil
	})
	return pipeline.Of[pipeline.Request](d)
}
