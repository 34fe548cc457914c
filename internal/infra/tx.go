// README: Transaction runner with retry on serialization failures and deadlocks.
package infra

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"fitdash/internal/apperr"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const (
	txRetryBase = 10 * time.Millisecond
	txRetryMax  = 500 * time.Millisecond
)

// RunTx runs fn inside a transaction and commits when it returns nil. Any
// error from fn rolls the transaction back and is returned unchanged, except
// serialization failures and deadlocks, which restart fn from the beginning
// until ctx expires. fn must not have side effects outside the transaction.
func RunTx(ctx context.Context, db TxBeginner, fn func(tx pgx.Tx) error) error {
	backoff := txRetryBase
	for attempt := 1; ; attempt++ {
		err := runOnce(ctx, db, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			if ctx.Err() != nil && apperr.KindOf(err) == apperr.KindInternal {
				return apperr.Internal(err, "transaction timed out")
			}
			return err
		}

		sleep := backoff/2 + rand.N(backoff/2+1)
		log.Debug().Err(err).Int("attempt", attempt).Dur("sleep", sleep).Msg("retrying transaction")
		select {
		case <-ctx.Done():
			return apperr.Internal(ctx.Err(), "transaction timed out")
		case <-time.After(sleep):
		}
		backoff = min(backoff*2, txRetryMax)
	}
}

func runOnce(ctx context.Context, db TxBeginner, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return true
	}
	return false
}
