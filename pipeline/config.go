package pipeline

import (
	"github.com/kbukum/tiered/logger"
	"github.com/kbukum/tiered/observability"
)

// Config configures a Pipeline.
type Config[K comparable, V any] struct {
	// Name labels logs, spans and metrics.
	Name string
	// InitialMachine is the state machine every call starts with.
	InitialMachine StateMachine[K, V]
	Logger         *logger.Logger
	// Metrics is optional.
	Metrics *observability.PipelineMetrics
}

// DefaultConfig returns a Config with defaults applied.
func DefaultConfig[K comparable, V any]() *Config[K, V] {
	c := &Config[K, V]{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset fields.
func (c *Config[K, V]) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "pipeline"
	}
	if c.InitialMachine == nil {
		c.InitialMachine = CoreMachine[K, V]{}
	}
	if c.Logger == nil {
		c.Logger = logger.Get("pipeline")
	}
}
