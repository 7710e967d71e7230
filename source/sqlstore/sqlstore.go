// Package sqlstore provides a terminal pipeline source backed by a
// key/value table in any database/sql database. Values are stored as JSON.
//
// The driver must be registered by the program: modernc.org/sqlite
// ("sqlite"), github.com/jackc/pgx/v5/stdlib ("pgx") or
// github.com/go-sql-driver/mysql ("mysql").
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	sq "github.com/Masterminds/squirrel"

	"github.com/kbukum/tiered/component"
	"github.com/kbukum/tiered/logger"
	"github.com/kbukum/tiered/pipeline"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
	DriverMySQL    = "mysql"
)

// DefaultTable is the table used when Config.Table is empty.
const DefaultTable = "tiered_entries"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config configures a Store.
type Config struct {
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=sqlite pgx mysql"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// ApplyDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.Table == "" {
		c.Table = DefaultTable
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("sqlstore: unsupported driver %q", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("sqlstore: dsn is required")
	}
	if !tableName.MatchString(c.Table) {
		return fmt.Errorf("sqlstore: invalid table name %q", c.Table)
	}
	return nil
}

// Store reads and writes entries of one table. Keys are rendered with
// fmt.Sprint.
type Store[K comparable, V any] struct {
	db     *sql.DB
	driver string
	table  string
	sb     sq.StatementBuilderType
	log    *logger.Logger
}

var (
	_ pipeline.Source[string, any] = (*Store[string, any])(nil)
	_ component.Component          = (*Store[string, any])(nil)
)

// Open opens the database described by cfg.
func Open[K comparable, V any](cfg Config, log *logger.Logger) (*Store[K, V], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	return New[K, V](db, cfg, log), nil
}

// New wraps an open database. cfg.DSN is ignored.
func New[K comparable, V any](db *sql.DB, cfg Config, log *logger.Logger) *Store[K, V] {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Get("sqlstore")
	}
	format := sq.PlaceholderFormat(sq.Question)
	if cfg.Driver == DriverPostgres {
		format = sq.Dollar
	}
	return &Store[K, V]{
		db:     db,
		driver: cfg.Driver,
		table:  cfg.Table,
		sb:     sq.StatementBuilder.PlaceholderFormat(format),
		log:    log.WithComponent("sqlstore"),
	}
}

// EnsureSchema creates the table if it does not exist.
func (s *Store[K, V]) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	entry_key VARCHAR(255) NOT NULL PRIMARY KEY,
	entry_value TEXT NOT NULL
)`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlstore: create table %s: %w", s.table, err)
	}
	return nil
}

// upsert returns the dialect's conflict clause.
func (s *Store[K, V]) upsert() string {
	if s.driver == DriverMySQL {
		return "ON DUPLICATE KEY UPDATE entry_value = VALUES(entry_value)"
	}
	return "ON CONFLICT (entry_key) DO UPDATE SET entry_value = excluded.entry_value"
}

// Put writes every entry of data, replacing existing values.
func (s *Store[K, V]) Put(ctx context.Context, data map[K]V) error {
	if len(data) == 0 {
		return nil
	}
	ins := s.sb.Insert(s.table).Columns("entry_key", "entry_value")
	for k, v := range data {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("sqlstore: encode %v: %w", k, err)
		}
		ins = ins.Values(fmt.Sprint(k), string(raw))
	}
	query, args, err := ins.Suffix(s.upsert()).ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlstore: put: %w", err)
	}
	return nil
}

// Read implements pipeline.Source. Identifiers without a row are absent
// from the result.
func (s *Store[K, V]) Read(ctx context.Context, q pipeline.Querier[K]) (map[K]V, error) {
	ids := q.IDs()
	if len(ids) == 0 {
		return map[K]V{}, nil
	}
	byKey := make(map[string]K, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		k := fmt.Sprint(id)
		if _, dup := byKey[k]; !dup {
			keys = append(keys, k)
		}
		byKey[k] = id
	}

	query, args, err := s.sb.Select("entry_key", "entry_value").
		From(s.table).
		Where(sq.Eq{"entry_key": keys}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("sqlstore: read: %w", err)
	}
	defer rows.Close()

	out := make(map[K]V, len(keys))
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("sqlstore: scan: %w", err)
		}
		var v V
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("sqlstore: decode %q: %w", key, err)
		}
		out[byKey[key]] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: read: %w", err)
	}
	return out, nil
}

// Delete removes the rows for ids.
func (s *Store[K, V]) Delete(ctx context.Context, ids []K) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprint(id)
	}
	query, args, err := s.sb.Delete(s.table).Where(sq.Eq{"entry_key": keys}).ToSql()
	if err != nil {
		return fmt.Errorf("sqlstore: build delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlstore: delete: %w", err)
	}
	return nil
}

// Name implements component.Component.
func (s *Store[K, V]) Name() string { return "sqlstore" }

// Start verifies the connection and creates the table.
func (s *Store[K, V]) Start(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlstore: ping: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	s.log.Info("sql store ready", logger.Fields("driver", s.driver, "table", s.table))
	return nil
}

// Stop closes the database.
func (s *Store[K, V]) Stop(context.Context) error { return s.db.Close() }

// Health pings the database.
func (s *Store[K, V]) Health(ctx context.Context) component.Health {
	if err := s.db.PingContext(ctx); err != nil {
		return component.Health{Name: s.Name(), Status: component.StatusUnhealthy, Message: err.Error()}
	}
	return component.Health{Name: s.Name(), Status: component.StatusHealthy}
}

// Describe summarizes the store.
func (s *Store[K, V]) Describe() component.Description {
	return component.Description{
		Name:    "SQL store",
		Type:    "database",
		Details: fmt.Sprintf("driver=%s table=%s", s.driver, s.table),
	}
}
