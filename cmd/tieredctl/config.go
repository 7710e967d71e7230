package main

import (
	"fmt"
	"time"

	"github.com/kbukum/tiered/config"
	"github.com/kbukum/tiered/observability"
	redisclient "github.com/kbukum/tiered/redis"
	"github.com/kbukum/tiered/resilience"
	"github.com/kbukum/tiered/source"
	"github.com/kbukum/tiered/source/sqlstore"
	"github.com/kbukum/tiered/stage/disk"
	"github.com/kbukum/tiered/stage/memory"
	stageredis "github.com/kbukum/tiered/stage/redis"
	"github.com/kbukum/tiered/stage/throttle"
	"github.com/kbukum/tiered/storage"
)

// Config is the tieredctl configuration file.
//
//	name: catalog
//	memory: {enabled: true, capacity: 50000}
//	disk: {enabled: true, storage: {provider: local, base_path: /var/cache/catalog}}
//	redis: {client: {enabled: true, addr: localhost:6379}, tier: {ttl: 1h}}
//	source: {sql: {driver: pgx, dsn: postgres://...}}
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
	Memory        MemoryConfig         `yaml:"memory" mapstructure:"memory"`
	Disk          DiskConfig           `yaml:"disk" mapstructure:"disk"`
	Redis         RedisConfig          `yaml:"redis" mapstructure:"redis"`
	Throttle      ThrottleConfig       `yaml:"throttle" mapstructure:"throttle"`
	// ChunkSize splits queries reaching the source. 0 disables chunking.
	ChunkSize int          `yaml:"chunk_size" mapstructure:"chunk_size" validate:"gte=0"`
	Source    SourceConfig `yaml:"source" mapstructure:"source"`
}

// MemoryConfig configures the in-process tier.
type MemoryConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Capacity int64         `yaml:"capacity" mapstructure:"capacity" validate:"gte=0"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// DiskConfig configures the persistent tier.
type DiskConfig struct {
	Enabled  bool           `yaml:"enabled" mapstructure:"enabled"`
	FailOpen bool           `yaml:"fail_open" mapstructure:"fail_open"`
	Storage  storage.Config `yaml:"storage" mapstructure:"storage"`
	Tier     disk.Config    `yaml:"tier" mapstructure:"tier"`
}

// RedisConfig configures the shared tier.
type RedisConfig struct {
	FailOpen bool               `yaml:"fail_open" mapstructure:"fail_open"`
	Client   redisclient.Config `yaml:"client" mapstructure:"client"`
	Tier     stageredis.Config  `yaml:"tier" mapstructure:"tier"`
}

// ThrottleConfig paces requests reaching the source.
type ThrottleConfig struct {
	Enabled bool    `yaml:"enabled" mapstructure:"enabled"`
	Rate    float64 `yaml:"rate" mapstructure:"rate" validate:"gte=0"`
	Burst   int     `yaml:"burst" mapstructure:"burst" validate:"gte=0"`
	PerID   bool    `yaml:"per_id" mapstructure:"per_id"`
}

// SourceConfig configures the SQL source and its protections.
type SourceConfig struct {
	SQL           sqlstore.Config `yaml:"sql" mapstructure:"sql"`
	MaxConcurrent int             `yaml:"max_concurrent" mapstructure:"max_concurrent" validate:"gte=0"`
	Retries       int             `yaml:"retries" mapstructure:"retries" validate:"gte=0"`
	// BreakerFailures opens the circuit after that many consecutive
	// failures. 0 disables the breaker.
	BreakerFailures int           `yaml:"breaker_failures" mapstructure:"breaker_failures" validate:"gte=0"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" mapstructure:"breaker_timeout"`
}

// ApplyDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Observability.ApplyDefaults()
	if c.Observability.ServiceName == "tiered" {
		c.Observability.ServiceName = c.Name
	}

	c.Disk.Storage.Enabled = c.Disk.Enabled
	c.Disk.Storage.ApplyDefaults()
	c.Disk.Tier.ApplyDefaults()
	c.Redis.Client.ApplyDefaults()
	c.Redis.Tier.ApplyDefaults()
	if c.Redis.Tier.KeyPrefix == "" {
		c.Redis.Tier.KeyPrefix = c.Name
	}

	c.Source.SQL.ApplyDefaults()
	if c.Source.SQL.DSN == "" && c.Source.SQL.Driver == sqlstore.DriverSQLite {
		c.Source.SQL.DSN = c.Name + ".db"
	}
	if c.Source.MaxConcurrent == 0 {
		c.Source.MaxConcurrent = 8
	}
	if c.Source.BreakerTimeout == 0 {
		c.Source.BreakerTimeout = 30 * time.Second
	}
}

// Validate checks the parts struct tags cannot express.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Observability.Validate(); err != nil {
		return err
	}
	if c.Disk.Enabled {
		if err := c.Disk.Storage.Validate(); err != nil {
			return err
		}
	}
	if err := c.Redis.Client.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return c.Source.SQL.Validate()
}

func (c *Config) memory() memory.Config {
	return memory.Config{Capacity: c.Memory.Capacity, TTL: c.Memory.TTL}
}

func (c *Config) throttle() throttle.Config {
	return throttle.Config{
		RateLimiterConfig: resilience.RateLimiterConfig{Name: "source", Rate: c.Throttle.Rate, Burst: c.Throttle.Burst},
		PerID:             c.Throttle.PerID,
	}
}

// protections maps the source settings onto source.WithResilience.
func (c *Config) protections() source.ResilienceConfig {
	var rc source.ResilienceConfig
	if c.Source.Retries > 0 {
		retry := resilience.DefaultRetryConfig()
		retry.MaxAttempts = c.Source.Retries + 1
		rc.Retry = &retry
	}
	if c.Source.BreakerFailures > 0 {
		breaker := resilience.DefaultCircuitBreakerConfig("source")
		breaker.MaxFailures = c.Source.BreakerFailures
		breaker.Timeout = c.Source.BreakerTimeout
		rc.Breaker = &breaker
	}
	return rc
}
