package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for migrations
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// PoolConfig holds PostgreSQL connection pool configuration.
type PoolConfig struct {
	DSN              string
	MaxConns         int32         // 0 = auto-scale from GOMAXPROCS
	MinConns         int32         // 0 = auto-scale from GOMAXPROCS
	MaxConnLifetime  time.Duration // 0 = 5min default
	MaxConnIdleTime  time.Duration // 0 = 1min default
	StatementTimeout time.Duration // applied per-connection via statement_timeout
	SessionTimeZone  string        // applied per-connection via SET TIMEZONE
}

// Connect runs migrations and opens a connection pool against cfg.DSN.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if err := runMigrationsWithDSN(ctx, cfg.DSN); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = int32(runtime.GOMAXPROCS(0) * 4)
	}
	minConns := cfg.MinConns
	if minConns <= 0 {
		minConns = int32(runtime.GOMAXPROCS(0))
	}
	connMaxLifetime := cfg.MaxConnLifetime
	if connMaxLifetime <= 0 {
		connMaxLifetime = 5 * time.Minute
	}
	connMaxIdleTime := cfg.MaxConnIdleTime
	if connMaxIdleTime <= 0 {
		connMaxIdleTime = time.Minute
	}
	timezone := cfg.SessionTimeZone
	if timezone == "" {
		timezone = "UTC"
	}

	poolConfig.MaxConns = maxConns
	poolConfig.MinConns = minConns
	poolConfig.MaxConnLifetime = connMaxLifetime
	poolConfig.MaxConnIdleTime = connMaxIdleTime

	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, fmt.Sprintf("SET TIMEZONE=%s", quoteLiteral(timezone))); err != nil {
			return err
		}
		if cfg.StatementTimeout > 0 {
			stmt := fmt.Sprintf("SET statement_timeout = %d", cfg.StatementTimeout.Milliseconds())
			if _, err := conn.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func quoteLiteral(s string) string {
	return "'" + s + "'"
}

// runMigrationsWithDSN runs the engine-owned table migrations using goose
// with embedded files. Uses a temporary database/sql connection since goose
// requires it; the long-lived pool is opened separately via Connect.
func runMigrationsWithDSN(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.ErrorContext(ctx, "failed to close migration database connection", "error", err)
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database for migrations: %w", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	goose.SetBaseFS(embedMigrations)

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}
