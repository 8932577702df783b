// Package config loads the scheduler's configuration profile from
// environment variables. There is no file-based format; env.Load overlays
// whatever is set on top of the defaults already populated on Config below.
package config

import (
	"fmt"
	"time"

	"github.com/rezkam/shiftengine/internal/env"
)

// Engine holds the knobs §6 names for the expansion/cleanup/finalize/retry
// stages.
type Engine struct {
	AdvanceDays          int           `env:"ADVANCE_DAYS"`
	MonthlyMonthsAhead   int           `env:"MONTHLY_MONTHS_AHEAD"`
	DeleteBatchSize      int           `env:"DELETE_BATCH_SIZE"`
	InsertBatchSize      int           `env:"INSERT_BATCH_SIZE"`
	SleepBetweenBatches  time.Duration `env:"SLEEP_BETWEEN_BATCHES"`
	MaxRetries           int           `env:"MAX_RETRIES"`
	RetryBaseDelay       time.Duration `env:"RETRY_BASE_DELAY"`
	HistoryRetentionDays int           `env:"HISTORY_RETENTION_DAYS"`
	AuditRetentionDays   int           `env:"AUDIT_RETENTION_DAYS"`
	SessionTimeZone      string        `env:"SESSION_TIME_ZONE"`
	SessionLeaseTTL      time.Duration `env:"SESSION_LEASE_TTL"`
}

func (e Engine) Validate() error {
	if e.AdvanceDays <= 0 {
		return fmt.Errorf("config: advance_days must be positive, got %d", e.AdvanceDays)
	}
	if e.MonthlyMonthsAhead <= 0 {
		return fmt.Errorf("config: monthly_months_ahead must be positive, got %d", e.MonthlyMonthsAhead)
	}
	if _, err := time.LoadLocation(e.SessionTimeZone); err != nil {
		return fmt.Errorf("config: invalid session_time_zone %q: %w", e.SessionTimeZone, err)
	}
	return nil
}

// Database holds the pgxpool connection and migration settings.
type Database struct {
	DSN             string        `env:"DATABASE_DSN"`
	MaxConns        int32         `env:"DB_MAX_CONNS"`
	MinConns        int32         `env:"DB_MIN_CONNS"`
	StatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT"`
	MigrationsPath  string        `env:"DB_MIGRATIONS_PATH"`
}

func (d Database) Validate() error {
	if d.DSN == "" {
		return fmt.Errorf("config: database_dsn is required")
	}
	if d.MinConns > d.MaxConns {
		return fmt.Errorf("config: db_min_conns (%d) cannot exceed db_max_conns (%d)", d.MinConns, d.MaxConns)
	}
	return nil
}

// HTTP holds the optional control-plane bind address and auth key.
type HTTP struct {
	Enabled     bool          `env:"HTTP_ENABLED"`
	Addr        string        `env:"HTTP_ADDR"`
	APIKey      string        `env:"HTTP_API_KEY"`
	MaxBodySize int64         `env:"HTTP_MAX_BODY_BYTES"`
	ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT"`
}

func (h HTTP) Validate() error {
	if h.Enabled && h.APIKey == "" {
		return fmt.Errorf("config: http_api_key is required when http_enabled is true")
	}
	return nil
}

// Observability holds the OpenTelemetry export toggle and endpoint.
type Observability struct {
	OTelEnabled  bool   `env:"OTEL_ENABLED"`
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME"`
}

// Config is the root configuration struct. Defaults are pre-populated by
// Default() before env.Load overlays any environment overrides, since the
// loader itself has no notion of a default value.
type Config struct {
	Engine        Engine
	Database      Database
	HTTP          HTTP
	Observability Observability
}

// Default returns a Config with every §6 default applied.
func Default() Config {
	return Config{
		Engine: Engine{
			AdvanceDays:          45,
			MonthlyMonthsAhead:   3,
			DeleteBatchSize:      5000,
			InsertBatchSize:      1000,
			SleepBetweenBatches:  100 * time.Millisecond,
			MaxRetries:           5,
			RetryBaseDelay:       200 * time.Millisecond,
			HistoryRetentionDays: 120,
			AuditRetentionDays:   3,
			SessionTimeZone:      "US/Eastern",
			SessionLeaseTTL:      30 * time.Minute,
		},
		Database: Database{
			MaxConns:         10,
			MinConns:         2,
			StatementTimeout: 60 * time.Second,
			MigrationsPath:   "migrations",
		},
		HTTP: HTTP{
			Enabled:      false,
			Addr:         ":8080",
			MaxBodySize:  1 << 20,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Observability: Observability{
			ServiceName: "shiftengine",
		},
	}
}

// Load builds a Config from defaults overlaid with environment variables,
// then validates every nested section.
func Load() (Config, error) {
	cfg := Default()
	if err := env.Load(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: loading environment: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return nil
}
