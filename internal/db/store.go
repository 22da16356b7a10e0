package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pharmacy-retail/internal/core"
)

// Store implements core.Store over a PostgreSQL pool. Each WithinTx call is
// one READ COMMITTED transaction; correctness of concurrent scans rests on
// the explicit row locks taken by the repositories.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

var _ core.Store = (*Store)(nil)

// NewStore returns a Store. A positive lockTimeout bounds how long any
// statement waits for a row lock before the transaction fails as retryable.
func NewStore(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{pool: pool, lockTimeout: lockTimeout}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		ms := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", ms); err != nil {
			return storeErr("set lock timeout", err)
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Orders() core.OrderRepository    { return &orderRepo{tx: t.tx} }
func (t *pgTx) Inventory() core.InventoryLedger { return &inventoryLedger{tx: t.tx} }
func (t *pgTx) Catalog() core.Catalog           { return &catalogRepo{tx: t.tx} }

// PostgreSQL error codes that signal a transient concurrency failure.
const (
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

// storeErr classifies a driver error. Lock waits, deadlocks and unique
// collisions are retryable conflicts; everything else is an internal fault.
func storeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeDeadlockDetected, codeSerializationFailure, codeLockNotAvailable:
			return &core.Error{Kind: core.KindConflict, Op: op, Message: "concurrent update, retry the request", Err: err}
		case codeUniqueViolation:
			return &core.Error{Kind: core.KindConflict, Op: op, Message: "duplicate " + pgErr.ConstraintName, Err: err}
		}
	}
	return core.Wrap(core.KindInternal, op, err)
}
