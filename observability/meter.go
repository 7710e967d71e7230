package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/tiered/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	Insecure bool
	Interval time.Duration
}

// InitMeter initializes the OpenTelemetry meter provider and installs it
// globally. The provider should be shut down on exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Get("observability").Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metric attribute keys.
const (
	AttrPipeline = "pipeline"
	AttrStage    = "stage"
	AttrRequest  = "request"
	AttrEvent    = "event"
	AttrSource   = "source"
	AttrTier     = "tier"
	AttrOutcome  = "outcome"
	AttrCode     = "code"
)

// Outcomes recorded on retrieve.total and source.reads.
const (
	OutcomeOK        = "ok"
	OutcomePartial   = "partial"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// PipelineMetrics holds the instruments a pipeline and its collaborators
// report through. A nil *PipelineMetrics records nothing.
type PipelineMetrics struct {
	retrieveTotal    metric.Int64Counter
	retrieveDuration metric.Float64Histogram
	retrieveIDs      metric.Int64Histogram
	sourceReads      metric.Int64Counter
	sourceDuration   metric.Float64Histogram
	stageRequests    metric.Int64Counter
	tierLookups      metric.Int64Counter
	eventsBroadcast  metric.Int64Counter
	errorTotal       metric.Int64Counter
}

// NewPipelineMetrics creates the instruments on meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	var (
		m   PipelineMetrics
		err error
	)

	if m.retrieveTotal, err = meter.Int64Counter("tiered.retrieve.total",
		metric.WithDescription("Completed retrieve calls by outcome"),
	); err != nil {
		return nil, fmt.Errorf("creating tiered.retrieve.total counter: %w", err)
	}
	if m.retrieveDuration, err = meter.Float64Histogram("tiered.retrieve.duration",
		metric.WithDescription("Duration of retrieve calls in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating tiered.retrieve.duration histogram: %w", err)
	}
	if m.retrieveIDs, err = meter.Int64Histogram("tiered.retrieve.ids",
		metric.WithDescription("Identifiers requested per retrieve call"),
	); err != nil {
		return nil, fmt.Errorf("creating tiered.retrieve.ids histogram: %w", err)
	}
	if m.sourceReads, err = meter.Int64Counter("tiered.source.reads",
		metric.WithDescription("Reads issued against the authoritative source"),
	); err != nil {
		return nil, fmt.Errorf("creating tiered.source.reads counter: %w", err)
	}
	if m.sourceDuration, err = meter.Float64Histogram("tiered.source.duration",
		metric.WithDescription("Duration of source reads in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating tiered.source.duration histogram: %w", err)
	}
	if m.stageRequests, err = meter.Int64Counter("tiered.stage.requests",
		metric.WithDescription("Requests handed to a stage by kind"),
	); err != nil {
		return nil, fmt.Errorf("creating tiered.stage.requests counter: %w", err)
	}
	if m.tierLookups, err = meter.Int64Counter("tiered.tier.lookups",
		metric.WithDescription("Cache tier lookups by tier and outcome (hit/miss)"),
	); err != nil {
		return nil, fmt.Errorf("creating tiered.tier.lookups counter: %w", err)
	}
	if m.eventsBroadcast, err = meter.Int64Counter("tiered.events.broadcast",
		metric.WithDescription("Events broadcast to stages"),
	); err != nil {
		return nil, fmt.Errorf("creating tiered.events.broadcast counter: %w", err)
	}
	if m.errorTotal, err = meter.Int64Counter("tiered.errors.total",
		metric.WithDescription("Errors by code and component"),
	); err != nil {
		return nil, fmt.Errorf("creating tiered.errors.total counter: %w", err)
	}
	return &m, nil
}

// RecordRetrieve records a finished retrieve call.
func (m *PipelineMetrics) RecordRetrieve(ctx context.Context, pipeline, outcome string, ids int, d time.Duration) {
	if m == nil {
		return
	}
	p := attribute.String(AttrPipeline, pipeline)
	m.retrieveTotal.Add(ctx, 1, metric.WithAttributes(p, attribute.String(AttrOutcome, outcome)))
	m.retrieveDuration.Record(ctx, d.Seconds(), metric.WithAttributes(p))
	m.retrieveIDs.Record(ctx, int64(ids), metric.WithAttributes(p))
}

// RecordSourceRead records one read against a source.
func (m *PipelineMetrics) RecordSourceRead(ctx context.Context, source, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	s := attribute.String(AttrSource, source)
	m.sourceReads.Add(ctx, 1, metric.WithAttributes(s, attribute.String(AttrOutcome, outcome)))
	m.sourceDuration.Record(ctx, d.Seconds(), metric.WithAttributes(s))
}

// RecordStageRequest records a request handed to the stage at index.
func (m *PipelineMetrics) RecordStageRequest(ctx context.Context, pipeline string, stage int, kind string) {
	if m == nil {
		return
	}
	m.stageRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrPipeline, pipeline),
		attribute.Int(AttrStage, stage),
		attribute.String(AttrRequest, kind),
	))
}

// RecordTierLookup records hit and miss counts for one cache tier lookup.
func (m *PipelineMetrics) RecordTierLookup(ctx context.Context, tier string, hits, misses int) {
	if m == nil {
		return
	}
	t := attribute.String(AttrTier, tier)
	if hits > 0 {
		m.tierLookups.Add(ctx, int64(hits), metric.WithAttributes(t, attribute.String(AttrOutcome, "hit")))
	}
	if misses > 0 {
		m.tierLookups.Add(ctx, int64(misses), metric.WithAttributes(t, attribute.String(AttrOutcome, "miss")))
	}
}

// RecordEvent records an event broadcast.
func (m *PipelineMetrics) RecordEvent(ctx context.Context, pipeline, event string) {
	if m == nil {
		return
	}
	m.eventsBroadcast.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrPipeline, pipeline),
		attribute.String(AttrEvent, event),
	))
}

// RecordError records an error by code and component.
func (m *PipelineMetrics) RecordError(ctx context.Context, code, component string) {
	if m == nil {
		return
	}
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrCode, code),
		attribute.String("component", component),
	))
}
