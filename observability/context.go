package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Operation tracks one traced and metered unit of work, such as a retrieve
// call or a source read.
type Operation struct {
	Name      string
	Pipeline  string
	CallID    string
	StartTime time.Time
	Metrics   *PipelineMetrics
}

// StartOperation starts a span named spanName and returns the Operation that
// ends it. Metrics may be nil.
func StartOperation(ctx context.Context, spanName, pipeline, callID string, metrics *PipelineMetrics) (context.Context, trace.Span, *Operation) {
	ctx, span := StartSpan(ctx, spanName, trace.WithAttributes(
		attribute.String(AttrPipeline, pipeline),
		attribute.String(AttrCallID, callID),
	))
	return ctx, span, &Operation{
		Name:      spanName,
		Pipeline:  pipeline,
		CallID:    callID,
		StartTime: time.Now(),
		Metrics:   metrics,
	}
}

// EndRetrieve ends a retrieve span and records retrieve metrics.
func (op *Operation) EndRetrieve(ctx context.Context, span trace.Span, outcome string, ids, results int, err error) {
	duration := op.Duration()
	SetSpanError(span, err)
	span.SetAttributes(
		attribute.String(AttrOutcomes, outcome),
		attribute.Int(AttrIDCount, ids),
		attribute.Int(AttrResults, results),
	)
	span.End()
	op.Metrics.RecordRetrieve(ctx, op.Pipeline, outcome, ids, duration)
}

// Duration returns the elapsed time since the operation started.
func (op *Operation) Duration() time.Duration {
	return time.Since(op.StartTime)
}
