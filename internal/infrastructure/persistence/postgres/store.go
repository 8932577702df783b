package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rezkam/shiftengine/internal/engine"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, letting every query
// method run identically whether it is part of a transaction or not.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the engine.Repository implementation backed by a pgxpool.Pool.
// Every query is hand-written: the retrieval pack carries no sqlc-generated
// layer for this domain, so queries are built directly the way a hand-rolled
// pgx repository does it.
type Store struct {
	pool   *pgxpool.Pool
	db     dbtx
	logger *slog.Logger
}

var _ engine.Repository = (*Store)(nil)

func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, db: pool, logger: logger.With("component", "postgres_store")}
}

func (s *Store) Close() {
	s.pool.Close()
}

// withTx runs fn against a transaction-scoped Store, committing on success
// and rolling back on error or panic.
func (s *Store) withTx(ctx context.Context, fn func(txStore *Store) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.ErrorContext(ctx, "rollback failed", slog.String("error", rbErr.Error()))
			}
			return
		}
		err = tx.Commit(ctx)
	}()

	txStore := &Store{pool: s.pool, db: tx, logger: s.logger}
	err = fn(txStore)
	return
}
