package source

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/kbukum/tiered/errors"
	"github.com/kbukum/tiered/logger"
	"github.com/kbukum/tiered/observability"
	"github.com/kbukum/tiered/pipeline"
)

// Instrument wraps src with a span per read, a debug log line and error
// metrics. log and metrics may be nil.
func Instrument[K comparable, V any](name string, src pipeline.Source[K, V], log *logger.Logger, metrics *observability.PipelineMetrics) pipeline.Source[K, V] {
	if log == nil {
		log = logger.Get("source." + name)
	}
	log = log.WithFields(logger.Fields(logger.FieldSource, name))

	return pipeline.SourceFunc[K, V](func(ctx context.Context, q pipeline.Querier[K]) (map[K]V, error) {
		ctx, span := observability.StartSpan(ctx, observability.SpanSourceRead, trace.WithAttributes(
			attribute.String(observability.AttrSource, name),
			attribute.Int(observability.AttrIDCount, len(q.IDs())),
		))
		defer span.End()

		fields := logger.Fields(logger.FieldIDs, len(q.IDs()))
		if meta := q.Metadata(); meta != nil {
			fields[logger.FieldCallID] = meta.CallID.String()
		}

		start := time.Now()
		data, err := src.Read(ctx, q)
		fields[logger.FieldDuration] = time.Since(start).Milliseconds()
		if err != nil {
			observability.SetSpanError(span, err)
			if ctx.Err() == nil {
				code := string(apperrors.ErrCodeInternal)
				if appErr, ok := apperrors.AsAppError(err); ok {
					code = string(appErr.Code)
				}
				metrics.RecordError(ctx, code, "source."+name)
				fields[logger.FieldError] = err
				log.WithContext(ctx).Warn("source read failed", fields)
			}
			return nil, err
		}

		span.SetAttributes(attribute.Int(observability.AttrResults, len(data)))
		fields[logger.FieldResults] = len(data)
		log.WithContext(ctx).Debug("source read", fields)
		return data, nil
	})
}
