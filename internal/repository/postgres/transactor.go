package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Transactor runs a function inside a database transaction injected into the
// context. Repositories pick the transaction up through execQueryer, so the
// same repo code works inside and outside a transaction. Begin or commit
// failures surface to the caller, which is what lets the persister degrade to
// its non-transactional tier.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ Transactor = (*transactorImpl)(nil)

type transactorImpl struct {
	db  *DB
	log *zap.Logger
}

func NewTransactor(db *DB, log *zap.Logger) *transactorImpl {
	return &transactorImpl{db: db, log: log}
}

func (t *transactorImpl) WithTx(ctx context.Context, fn func(ctx context.Context) error) (txErr error) {
	ctxWithTx, tx, err := injectTx(ctx, t.db)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if txErr != nil {
			if rbErr := tx.Rollback(ctxWithTx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				t.log.Error("rollback", zap.Error(rbErr))
			}
			return
		}
		if cmErr := tx.Commit(ctxWithTx); cmErr != nil {
			t.log.Error("commit", zap.Error(cmErr))
			txErr = fmt.Errorf("commit tx: %w", cmErr)
		}
	}()

	if err := fn(ctxWithTx); err != nil {
		return err
	}
	return nil
}

type txInjector struct{}

var ErrTxNotFound = errors.New("tx not found in context")

func injectTx(ctx context.Context, db *DB) (context.Context, pgx.Tx, error) {
	if tx, err := extractTx(ctx); err == nil {
		return ctx, tx, nil
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	return context.WithValue(ctx, txInjector{}, tx), tx, nil
}

func extractTx(ctx context.Context) (pgx.Tx, error) {
	tx, ok := ctx.Value(txInjector{}).(pgx.Tx)
	if !ok {
		return nil, ErrTxNotFound
	}
	return tx, nil
}

type execQueryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (db *DB) execQueryer(ctx context.Context) execQueryer {
	if tx, err := extractTx(ctx); err == nil && tx != nil {
		return tx
	}
	return db.Pool
}
