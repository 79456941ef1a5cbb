package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tylerheishman/manifold/internal/domain"
)

// RetryPolicy bounds the optimistic-concurrency retry loop around
// serializable transactions.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// DefaultRetryPolicy retries serialization failures five times with jittered
// exponential backoff starting at 10ms.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, BaseBackoff: 10 * time.Millisecond}

// Ledger implements domain.Ledger on a pgx connection pool.
type Ledger struct {
	pool   querierPool
	retry  RetryPolicy
	logger *slog.Logger
}

type querierPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// NewLedger creates a Ledger backed by the given client.
func NewLedger(c *Client, retry RetryPolicy, logger *slog.Logger) *Ledger {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy
	}
	return &Ledger{
		pool:   c.Pool(),
		retry:  retry,
		logger: logger.With(slog.String("component", "ledger")),
	}
}

// RunTx executes fn inside a serializable transaction. Serialization
// failures and deadlocks are retried up to the policy's attempt bound;
// between the first read and the commit fn must not perform irreversible
// external I/O, since it may run more than once.
func (l *Ledger) RunTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < l.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := l.retry.BaseBackoff << uint(attempt-1)
			jitter := time.Duration(rand.Int63n(int64(backoff) + 1))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
			l.logger.WarnContext(ctx, "retrying transaction after conflict",
				slog.Int("attempt", attempt+1),
			)
		}

		err := l.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("postgres: %w after %d attempts: %v",
		domain.ErrTxConflict, l.retry.MaxAttempts, lastErr)
}

func (l *Ledger) runOnce(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	pgxTx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	t := &tx{q: pgxTx}
	if err := fn(ctx, t); err != nil {
		_ = pgxTx.Rollback(ctx)
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// isSerializationFailure reports whether err is a retryable transaction
// conflict (SQLSTATE 40001 serialization_failure or 40P01 deadlock_detected).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
