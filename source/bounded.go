package source

import (
	"context"

	"github.com/kbukum/tiered/pipeline"
	"github.com/kbukum/tiered/resilience"
)

// Bounded limits the reads in flight against a source. Reads over the
// limit wait according to cfg.MaxWait; a zero MaxWait is treated as "wait
// until the call is cancelled", since fan-out makes short bursts normal.
func Bounded[K comparable, V any](src pipeline.Source[K, V], cfg resilience.BulkheadConfig) pipeline.Source[K, V] {
	if cfg.Name == "" {
		cfg.Name = "source"
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = -1
	}
	b := resilience.NewBulkhead(cfg)
	return pipeline.SourceFunc[K, V](func(ctx context.Context, q pipeline.Querier[K]) (map[K]V, error) {
		return resilience.ExecuteWithResult(b, ctx, func() (map[K]V, error) {
			return src.Read(ctx, q)
		})
	})
}
