package main

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/multierr"

	"github.com/kbukum/tiered/component"
	"github.com/kbukum/tiered/logger"
	"github.com/kbukum/tiered/observability"
	"github.com/kbukum/tiered/pipeline"
	redisclient "github.com/kbukum/tiered/redis"
	"github.com/kbukum/tiered/resilience"
	"github.com/kbukum/tiered/source"
	"github.com/kbukum/tiered/source/sqlstore"
	"github.com/kbukum/tiered/stage"
	"github.com/kbukum/tiered/stage/chunk"
	"github.com/kbukum/tiered/stage/disk"
	"github.com/kbukum/tiered/stage/memory"
	stageredis "github.com/kbukum/tiered/stage/redis"
	"github.com/kbukum/tiered/stage/throttle"
	"github.com/kbukum/tiered/storage"

	// Storage backends register themselves with the storage factory.
	_ "github.com/kbukum/tiered/storage/local"
	_ "github.com/kbukum/tiered/storage/s3"
)

// app is a started pipeline over the configured tiers.
type app struct {
	log      *logger.Logger
	registry *component.Registry
	store    *sqlstore.Store[string, json.RawMessage]
	pipeline *pipeline.Pipeline[string, json.RawMessage]
	closers  []func() error
	shutdown func(context.Context) error
}

func newApp(ctx context.Context, cfg *Config) (a *app, err error) {
	logger.Init(cfg.Logging)
	log := logger.Get("tieredctl")

	shutdown, err := observability.Init(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	a = &app{log: log, registry: component.NewRegistry(log), shutdown: shutdown}
	defer func() {
		if err != nil {
			_ = a.close(ctx)
		}
	}()

	var metrics *observability.PipelineMetrics
	if cfg.Observability.Enabled {
		if metrics, err = observability.NewPipelineMetrics(observability.Meter(observability.TracerName)); err != nil {
			return nil, err
		}
	}

	a.store, err = sqlstore.Open[string, json.RawMessage](cfg.Source.SQL, log)
	if err != nil {
		return nil, err
	}
	if err := a.registry.Register(a.store); err != nil {
		return nil, err
	}
	var redisComp *redisclient.Component
	if cfg.Redis.Client.Enabled {
		redisComp = redisclient.NewComponent(cfg.Redis.Client, log)
		if err := a.registry.Register(redisComp); err != nil {
			return nil, err
		}
	}
	var storageComp *storage.Component
	if cfg.Disk.Enabled {
		storageComp = storage.NewComponent(cfg.Disk.Storage, nil, log)
		if err := a.registry.Register(storageComp); err != nil {
			return nil, err
		}
	}
	if err := a.registry.StartAll(ctx); err != nil {
		return nil, err
	}

	stages, err := a.stages(cfg, metrics, redisComp, storageComp)
	if err != nil {
		return nil, err
	}

	src := source.Instrument("sql", source.Bounded(
		source.WithResilience[string, json.RawMessage](a.store, cfg.protections()),
		resilience.BulkheadConfig{Name: "sql", MaxConcurrent: cfg.Source.MaxConcurrent},
	), log, metrics)

	a.pipeline, err = pipeline.NewWithConfig(src, &pipeline.Config[string, json.RawMessage]{
		Name:    cfg.Name,
		Logger:  logger.Get("pipeline"),
		Metrics: metrics,
	}, stages...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// stages builds the chain from the caller toward the source.
func (a *app) stages(cfg *Config, metrics *observability.PipelineMetrics, redisComp *redisclient.Component, storageComp *storage.Component) ([]pipeline.Stage, error) {
	tierOpts := func(failOpen bool) []stage.Option {
		opts := []stage.Option{stage.WithMetrics(metrics)}
		if failOpen {
			opts = append(opts, stage.WithFailOpen())
		}
		return opts
	}

	var stages []pipeline.Stage
	if cfg.Memory.Enabled {
		mem, err := memory.New[string, json.RawMessage](cfg.memory(), tierOpts(false)...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, mem.Close)
		stages = append(stages, mem)
	}
	if storageComp != nil {
		tier, err := disk.New[string, json.RawMessage](storageComp.Storage(), cfg.Disk.Tier, tierOpts(cfg.Disk.FailOpen)...)
		if err != nil {
			return nil, err
		}
		stages = append(stages, tier)
	}
	if redisComp != nil {
		tier, err := stageredis.New[string, json.RawMessage](redisComp.Client(), cfg.Redis.Tier, nil, tierOpts(cfg.Redis.FailOpen)...)
		if err != nil {
			return nil, err
		}
		stages = append(stages, tier)
	}
	if cfg.ChunkSize > 0 {
		c, err := chunk.New[string](cfg.ChunkSize)
		if err != nil {
			return nil, err
		}
		stages = append(stages, c)
	}
	if cfg.Throttle.Enabled {
		stages = append(stages, throttle.New[string](cfg.throttle(), logger.Get("stage.throttle")))
	}
	return stages, nil
}

func (a *app) close(ctx context.Context) error {
	var err error
	for _, c := range a.closers {
		err = multierr.Append(err, c())
	}
	return multierr.Combine(err, a.registry.StopAll(ctx), a.shutdown(ctx))
}
