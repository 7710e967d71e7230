// Package observability wires OpenTelemetry tracing and metrics into tiered
// pipelines.
//
//	shutdown, err := observability.Init(ctx, cfg.Observability)
//	defer shutdown(ctx)
//
//	metrics, err := observability.NewPipelineMetrics(observability.Meter("tiered"))
//
// PipelineMetrics methods are safe to call on a nil receiver, so components
// accept an optional *PipelineMetrics without guarding every call.
package observability
