package stage

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

// Store is the storage behind a cache tier.
type Store[K comparable, V any] interface {
	// GetMany returns the entries it holds for ids. Missing ids are absent
	// from the result; that is not an error.
	GetMany(ctx context.Context, ids []K) (map[K]V, error)
	// PutMany stores every entry of data.
	PutMany(ctx context.Context, data map[K]V) error
}

// Deleter is implemented by stores that can drop entries. A Tier over a
// Deleter handles Invalidate events.
type Deleter[K comparable] interface {
	DeleteMany(ctx context.Context, ids []K) error
}

// Invalidate is a broadcast event asking every tier to drop ids.
type Invalidate[K comparable] struct {
	pipeline.EventBase
	IDs []K
}

// NewInvalidate creates an Invalidate event for the call described by meta.
func NewInvalidate[K comparable](meta *pipeline.Metadata, ids []K) *Invalidate[K] {
	return &Invalidate[K]{EventBase: pipeline.NewEventBase(meta), IDs: ids}
}

// TierConfig configures a Tier.
type TierConfig struct {
	// FailOpen turns store failures into misses (reads) or skipped writes
	// instead of errors. Cancellation of the call is never swallowed.
	FailOpen bool
	Logger   *logger.Logger
	Metrics  *observability.PipelineMetrics
}

// Option configures a Tier.
type Option func(*TierConfig)

// WithLogger sets the tier logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *TierConfig) { c.Logger = l }
}

// WithMetrics sets the instruments lookups are recorded on.
func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(c *TierConfig) { c.Metrics = m }
}

// WithFailOpen makes store failures degrade to misses.
func WithFailOpen() Option {
	return func(c *TierConfig) { c.FailOpen = true }
}

// Tier is a cache stage in front of slower tiers:
//
//   - a Query is answered with a ResultSet of the hits and a Query for the
//     misses; either is omitted when empty
//   - a Retry is answered with the hits only and never split again
//   - a ResultSet is written to the store and passed on
//   - an Invalidate event drops its ids, when the store is a Deleter
//
// Further handlers may be registered on the embedded Dispatcher.
type Tier[K comparable, V any] struct {
	Dispatcher

	store   Store[K, V]
	name    string
	open    bool
	log     *logger.Logger
	metrics *observability.PipelineMetrics
}

// NewTier creates a Tier named name over store.
func NewTier[K comparable, V any](name string, store Store[K, V], opts ...Option) (*Tier[K, V], error) {
	if store == nil {
		return nil, apperrors.InvalidArgument("store", "must not be nil")
	}
	if name == "" {
		name = "tier"
	}
	var cfg TierConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Get("stage." + name)
	}

	t := &Tier[K, V]{
		store:   store,
		name:    name,
		open:    cfg.FailOpen,
		log:     cfg.Logger.WithFields(logger.Fields(logger.FieldTier, name)),
		metrics: cfg.Metrics,
	}
	Handle(&t.Dispatcher, t.query)
	Handle(&t.Dispatcher, t.retry)
	Handle(&t.Dispatcher, t.resultSet)
	if d, ok := store.(Deleter[K]); ok {
		OnEvent(&t.Dispatcher, func(ctx context.Context, ev *Invalidate[K]) error {
			if len(ev.IDs) == 0 {
				return nil
			}
			if err := d.DeleteMany(ctx, ev.IDs); err != nil {
				return t.fail(ctx, "delete", err)
			}
			return nil
		})
	}
	return t, nil
}

// Name returns the tier name.
func (t *Tier[K, V]) Name() string { return t.name }

func (t *Tier[K, V]) query(ctx context.Context, q *pipeline.Query[K]) (pipeline.Iterator[pipeline.Request], error) {
	hits, err := t.lookup(ctx, q.Metadata(), q.IDs())
	if err != nil {
		return nil, err
	}

	out := make([]pipeline.Request, 0, 2)
	if len(hits) > 0 {
		out = append(out, pipeline.NewResultSet(q.Metadata(), hits))
	}
	if misses := missing(q.IDs(), hits); len(misses) > 0 {
		out = append(out, pipeline.NewQuery(q.Metadata(), misses))
	}
	return pipeline.Of(out...), nil
}

func (t *Tier[K, V]) retry(ctx context.Context, r *pipeline.Retry[K]) (pipeline.Iterator[pipeline.Request], error) {
	hits, err := t.lookup(ctx, r.Metadata(), r.IDs())
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return pipeline.Empty[pipeline.Request](), nil
	}
	return pipeline.Of[pipeline.Request](pipeline.NewResultSet(r.Metadata(), hits)), nil
}

func (t *Tier[K, V]) resultSet(ctx context.Context, rs *pipeline.ResultSet[K, V]) (pipeline.Iterator[pipeline.Request], error) {
	if rs.Len() == 0 {
		return pipeline.Of[pipeline.Request](rs), nil
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanTierWrite, trace.WithAttributes(
		attribute.String(observability.AttrTier, t.name),
		attribute.Int(observability.AttrResults, rs.Len()),
	))
	defer span.End()

	if err := t.store.PutMany(ctx, rs.Data()); err != nil {
		observability.SetSpanError(span, err)
		if err := t.fail(ctx, "put", err); err != nil {
			return nil, err
		}
	}
	return pipeline.Of[pipeline.Request](rs), nil
}

// lookup reads ids from the store. With FailOpen a failed read is a miss
// for every id.
func (t *Tier[K, V]) lookup(ctx context.Context, meta *pipeline.Metadata, ids []K) (map[K]V, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanTierRead, trace.WithAttributes(
		attribute.String(observability.AttrTier, t.name),
		attribute.Int(observability.AttrIDCount, len(ids)),
	))
	defer span.End()

	start := time.Now()
	hits, err := t.store.GetMany(ctx, ids)
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, t.fail(ctx, "get", err)
	}

	span.SetAttributes(attribute.Int(observability.AttrHits, len(hits)))
	t.metrics.RecordTierLookup(ctx, t.name, len(hits), len(missing(ids, hits)))
	fields := logger.Fields(
		logger.FieldIDs, len(ids),
		logger.FieldResults, len(hits),
		logger.FieldDuration, time.Since(start).Milliseconds(),
	)
	if meta != nil {
		fields[logger.FieldCallID] = meta.CallID.String()
	}
	t.log.WithContext(ctx).Debug("tier lookup", fields)
	return hits, nil
}

// fail reports a store failure. It returns nil when the failure is
// absorbed by FailOpen.
func (t *Tier[K, V]) fail(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return err
	}
	t.metrics.RecordError(ctx, string(apperrors.ErrCodeStorage), t.name)
	if t.open {
		t.log.WithContext(ctx).Warn("tier store failed, continuing without it", logger.ErrorFields(op, err))
		return nil
	}
	return apperrors.Storage(t.name, err).WithDetail("operation", op)
}

// missing returns the ids absent from hits, in request order.
func missing[K comparable, V any](ids []K, hits map[K]V) []K {
	if len(hits) == 0 {
		return ids
	}
	out := make([]K, 0, len(ids))
	for _, id := range ids {
		if _, ok := hits[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
