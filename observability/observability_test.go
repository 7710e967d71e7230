package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestMetrics(t *testing.T) (*PipelineMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewPipelineMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewPipelineMetrics: %v", err)
	}
	return m, reader
}

// sumOf returns the total of an Int64 sum instrument across points matching attrs.
func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is not an int64 sum", name)
			}
		points:
			for _, dp := range sum.DataPoints {
				for _, kv := range attrs {
					v, ok := dp.Attributes.Value(kv.Key)
					if !ok || v != kv.Value {
						continue points
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func TestPipelineMetrics_Record(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRetrieve(ctx, "users", OutcomeOK, 3, time.Millisecond)
	m.RecordRetrieve(ctx, "users", OutcomePartial, 2, time.Millisecond)
	m.RecordSourceRead(ctx, "sql", OutcomeOK, time.Millisecond)
	m.RecordStageRequest(ctx, "users", 0, "query")
	m.RecordStageRequest(ctx, "users", 0, "query")
	m.RecordTierLookup(ctx, "memory", 2, 1)
	m.RecordEvent(ctx, "users", "pipeline_complete")
	m.RecordError(ctx, "INVALID_STATE", "engine")

	if got := sumOf(t, reader, "tiered.retrieve.total", attribute.String(AttrOutcome, OutcomeOK)); got != 1 {
		t.Errorf("expected 1 ok retrieve, got %d", got)
	}
	if got := sumOf(t, reader, "tiered.retrieve.total"); got != 2 {
		t.Errorf("expected 2 retrieves, got %d", got)
	}
	if got := sumOf(t, reader, "tiered.source.reads"); got != 1 {
		t.Errorf("expected 1 source read, got %d", got)
	}
	if got := sumOf(t, reader, "tiered.stage.requests", attribute.Int(AttrStage, 0)); got != 2 {
		t.Errorf("expected 2 stage requests, got %d", got)
	}
	if got := sumOf(t, reader, "tiered.tier.lookups", attribute.String(AttrOutcome, "hit")); got != 2 {
		t.Errorf("expected 2 hits, got %d", got)
	}
	if got := sumOf(t, reader, "tiered.tier.lookups", attribute.String(AttrOutcome, "miss")); got != 1 {
		t.Errorf("expected 1 miss, got %d", got)
	}
	if got := sumOf(t, reader, "tiered.events.broadcast"); got != 1 {
		t.Errorf("expected 1 event, got %d", got)
	}
	if got := sumOf(t, reader, "tiered.errors.total", attribute.String(AttrCode, "INVALID_STATE")); got != 1 {
		t.Errorf("expected 1 error, got %d", got)
	}
}

func TestPipelineMetrics_NilReceiver(t *testing.T) {
	var m *PipelineMetrics
	ctx := context.Background()
	m.RecordRetrieve(ctx, "p", OutcomeOK, 1, time.Second)
	m.RecordSourceRead(ctx, "s", OutcomeOK, time.Second)
	m.RecordStageRequest(ctx, "p", 0, "query")
	m.RecordTierLookup(ctx, "memory", 1, 1)
	m.RecordEvent(ctx, "p", "e")
	m.RecordError(ctx, "c", "x")
}

func TestStartOperation_EndRetrieve(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	m, reader := newTestMetrics(t)

	ctx, span := tp.Tracer("test").Start(context.Background(), SpanRetrieve)
	op := &Operation{Name: SpanRetrieve, Pipeline: "users", CallID: "c1", StartTime: time.Now(), Metrics: m}
	op.EndRetrieve(ctx, span, OutcomeError, 4, 1, errors.New("boom"))

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", ended[0].Status())
	}
	if len(ended[0].Events()) == 0 {
		t.Error("expected the error to be recorded as a span event")
	}
	if got := sumOf(t, reader, "tiered.retrieve.total", attribute.String(AttrOutcome, OutcomeError)); got != 1 {
		t.Errorf("expected 1 failed retrieve, got %d", got)
	}
}

func TestStartOperation_Fields(t *testing.T) {
	ctx, span, op := StartOperation(context.Background(), SpanRetrieve, "users", "c1", nil)
	defer span.End()
	if ctx == nil || op.Pipeline != "users" || op.CallID != "c1" {
		t.Errorf("unexpected operation %+v", op)
	}
	if op.Duration() < 0 {
		t.Error("duration must not be negative")
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
	}
	for _, tc := range tests {
		if got := sampler(tc.rate).Description(); got != tc.want {
			t.Errorf("sampler(%v) = %s, want %s", tc.rate, got, tc.want)
		}
	}
}

func TestConfig_DefaultsAndValidate(t *testing.T) {
	c := Config{}
	c.ApplyDefaults()
	if c.Endpoint != "localhost:4318" || c.SampleRate != 1.0 || c.Interval != 15*time.Second {
		t.Errorf("unexpected defaults %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	c.SampleRate = 2
	if err := c.Validate(); err == nil {
		t.Error("expected an error for sample rate above 1")
	}
}

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestInitTracer(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracerConfig{
		ServiceName: "test", ServiceVersion: "0.0.1", Environment: "test",
		Endpoint: "localhost:4318", Insecure: true, SampleRate: 0.5,
	})
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = tp.Shutdown(ctx)
}
