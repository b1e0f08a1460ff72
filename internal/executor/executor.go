// Package executor runs built statements against a fresh connection per
// call. Writes run inside one transaction that is committed once on
// success and rolled back on any failure; the connection is closed on
// every path.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/triage-ai/sqlgate/internal/apperr"
	"github.com/triage-ai/sqlgate/internal/sqlbuild"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single Query or Exec call.
const DefaultTimeout = 30 * time.Second

// Executor runs statements through a Provider.
type Executor struct {
	provider Provider
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates an Executor. A zero timeout disables the bound.
func New(provider Provider, timeout time.Duration, logger *zap.Logger) *Executor {
	return &Executor{
		provider: provider,
		timeout:  timeout,
		logger:   logger,
	}
}

// Query runs a read statement and returns every row. No rows is an empty
// slice, not an error.
func (e *Executor) Query(ctx context.Context, stmt sqlbuild.Statement) ([]Row, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	conn, err := e.provider.Acquire(ctx)
	if err != nil {
		return nil, e.classify(ctx, apperr.Wrap(apperr.ConnectionError, err))
	}
	defer e.release(conn)

	e.logger.Debug("query", zap.String("sql", stmt.SQL), zap.Int("args", len(stmt.Args)))

	rows, err := conn.conn.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, e.classify(ctx, fmt.Errorf("Query: %w", err))
	}
	defer func() { _ = rows.Close() }()

	out, err := scanRows(rows)
	if err != nil {
		return nil, e.classify(ctx, fmt.Errorf("Query: %w", err))
	}
	return out, nil
}

// Exec runs the statements in order inside one transaction and returns the
// summed rows affected. Any failure rolls back everything run so far.
func (e *Executor) Exec(ctx context.Context, stmts ...sqlbuild.Statement) (int64, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	conn, err := e.provider.Acquire(ctx)
	if err != nil {
		return 0, e.classify(ctx, apperr.Wrap(apperr.ConnectionError, err))
	}
	defer e.release(conn)

	tx, err := conn.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, e.classify(ctx, fmt.Errorf("Exec: begin: %w", err))
	}

	var affected int64
	for i, stmt := range stmts {
		e.logger.Debug("exec", zap.Int("statement", i+1), zap.String("sql", stmt.SQL), zap.Int("args", len(stmt.Args)))

		res, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			e.rollback(tx)
			if len(stmts) > 1 {
				err = fmt.Errorf("statement %d of %d: %w", i+1, len(stmts), err)
			}
			return 0, e.classify(ctx, fmt.Errorf("Exec: %w", err))
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			affected += n
		}
	}

	if err := tx.Commit(); err != nil {
		e.rollback(tx)
		return 0, e.classify(ctx, fmt.Errorf("Exec: commit: %w", err))
	}
	return affected, nil
}

func (e *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// rollback is best-effort. Its failure is logged and never replaces the
// error that caused it.
func (e *Executor) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		e.logger.Warn("rollback failed", zap.Error(err))
	}
}

func (e *Executor) release(conn *Conn) {
	if err := conn.Close(); err != nil {
		e.logger.Warn("closing connection failed", zap.Error(err))
	}
}

func (e *Executor) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &apperr.Error{
			Kind: apperr.Timeout,
			Err:  fmt.Errorf("exceeded %s: %w", e.timeout, err),
		}
	}
	return apperr.Wrap(apperr.ExecutionError, err)
}
