package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReadTx is a read scope handed to Store.Read callbacks.
type ReadTx struct {
	ctx    context.Context
	q      queryer
	closed bool
}

// WriteTx is an exclusive write transaction handed to Store.Write callbacks.
// It must not be used after the callback returns.
type WriteTx struct {
	ReadTx

	store    *Store
	inserted []InteractionRow
}

func (tx *ReadTx) check() error {
	if tx == nil || tx.closed {
		return ErrTxClosed
	}
	return nil
}

// Read runs fn against the database outside any write transaction.
func (s *Store) Read(ctx context.Context, fn func(tx *ReadTx) error) error {
	tx := &ReadTx{ctx: ctx, q: s.db}
	defer func() {
		tx.closed = true
	}()
	return fn(tx)
}

// Write runs fn inside one SQL transaction. The transaction commits when fn returns nil
// and rolls back on error or panic, so a failed callback leaves no rows behind.
func (s *Store) Write(ctx context.Context, fn func(tx *WriteTx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write transaction: %w", err)
	}

	tx := &WriteTx{
		ReadTx: ReadTx{ctx: ctx, q: sqlTx},
		store:  s,
	}
	defer func() {
		tx.closed = true
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit write transaction: %w", err)
	}

	if s.observer != nil {
		for _, row := range tx.inserted {
			s.observer.InteractionInserted(row)
		}
	}
	return nil
}
