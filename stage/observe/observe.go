// Package observe provides a pass-through stage that logs and counts the
// traffic crossing its position in the chain.
package observe

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kbukum/tiered/logger"
	"github.com/kbukum/tiered/observability"
	"github.com/kbukum/tiered/pipeline"
)

// Config configures a Stage.
type Config struct {
	// Name labels the stage in logs.
	Name string `mapstructure:"name"`
	// Position is the stage's index in the chain, used as a metric label.
	Position int `mapstructure:"position"`
}

// Stage forwards every request unchanged.
type Stage struct {
	name     string
	position int
	log      *logger.Logger
	metrics  *observability.PipelineMetrics

	mu     sync.Mutex
	counts map[string]int
}

var _ pipeline.Stage = (*Stage)(nil)

// New creates an observer stage. log and metrics may be nil.
func New(cfg Config, log *logger.Logger, metrics *observability.PipelineMetrics) *Stage {
	if cfg.Name == "" {
		cfg.Name = "observe"
	}
	if log == nil {
		log = logger.Get("stage." + cfg.Name)
	}
	return &Stage{
		name:     cfg.Name,
		position: cfg.Position,
		log:      log.WithComponent(cfg.Name),
		metrics:  metrics,
		counts:   make(map[string]int),
	}
}

// Process records req and returns it unchanged.
func (s *Stage) Process(ctx context.Context, req pipeline.Request) (pipeline.Iterator[pipeline.Request], error) {
	kind := Kind(req)
	s.count(kind)

	pipelineName := ""
	fields := logger.Fields(logger.FieldStage, s.name, logger.FieldRequest, kind)
	if meta := req.Metadata(); meta != nil {
		pipelineName = meta.Pipeline.Name
		fields[logger.FieldCallID] = meta.CallID.String()
	}
	s.metrics.RecordStageRequest(ctx, pipelineName, s.position, kind)
	s.log.WithContext(ctx).Debug("request", fields)
	return pipeline.Of(req), nil
}

// Signal records ev.
func (s *Stage) Signal(ctx context.Context, ev pipeline.Event) error {
	kind := Kind(ev)
	s.count(kind)
	fields := logger.Fields(logger.FieldStage, s.name, logger.FieldEvent, kind)
	if ev, ok := ev.(*pipeline.SourceRead); ok {
		fields[logger.FieldResults] = ev.Found
	}
	s.log.WithContext(ctx).Debug("event", fields)
	return nil
}

func (s *Stage) count(kind string) {
	s.mu.Lock()
	s.counts[kind]++
	s.mu.Unlock()
}

// Counts returns how many requests and events of each kind were seen.
func (s *Stage) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Kind names the kind of req without knowing the pipeline's type
// parameters: "query", "retry", "result_set", "deferred",
// "pipeline_complete", "source_read", or the Go type for anything else.
func Kind(req pipeline.Request) string {
	switch req.(type) {
	case *pipeline.Deferred:
		return "deferred"
	case *pipeline.PipelineComplete:
		return "pipeline_complete"
	case *pipeline.SourceRead:
		return "source_read"
	}
	name := fmt.Sprintf("%T", req)
	switch {
	case strings.HasPrefix(name, "*pipeline.Query["):
		return "query"
	case strings.HasPrefix(name, "*pipeline.Retry["):
		return "retry"
	case strings.HasPrefix(name, "*pipeline.ResultSet["):
		return "result_set"
	}
	return name
}
