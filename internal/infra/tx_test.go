package infra

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitdash/internal/apperr"
)

// fakeTx embeds pgx.Tx so only Commit and Rollback need implementing.
type fakeTx struct {
	pgx.Tx
	committed  *int
	rolledBack *int
}

func (t fakeTx) Commit(ctx context.Context) error {
	*t.committed++
	return nil
}

func (t fakeTx) Rollback(ctx context.Context) error {
	*t.rolledBack++
	return nil
}

type fakeBeginner struct {
	committed  int
	rolledBack int
}

func (b *fakeBeginner) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	return fakeTx{committed: &b.committed, rolledBack: &b.rolledBack}, nil
}

func TestRunTx_CommitsOnSuccess(t *testing.T) {
	db := &fakeBeginner{}
	err := RunTx(context.Background(), db, func(tx pgx.Tx) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, db.committed)
	assert.Zero(t, db.rolledBack)
}

func TestRunTx_RetriesSerializationFailure(t *testing.T) {
	db := &fakeBeginner{}
	calls := 0
	err := RunTx(context.Background(), db, func(tx pgx.Tx) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("update stock: %w", &pgconn.PgError{Code: pgerrcode.SerializationFailure})
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, db.rolledBack)
	assert.Equal(t, 1, db.committed)
}

func TestRunTx_DoesNotRetryValidation(t *testing.T) {
	db := &fakeBeginner{}
	calls := 0
	err := RunTx(context.Background(), db, func(tx pgx.Tx) error {
		calls++
		return apperr.FailedPrecondition("insufficient stock")
	})
	assert.Equal(t, apperr.KindFailedPrecondition, apperr.KindOf(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, db.rolledBack)
	assert.Zero(t, db.committed)
}

func TestRunTx_DeadlockUntilTimeout(t *testing.T) {
	db := &fakeBeginner{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := RunTx(ctx, db, func(tx pgx.Tx) error {
		return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.True(t, apperr.Retryable(err))
	assert.Zero(t, db.committed)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&pgconn.PgError{Code: pgerrcode.SerializationFailure}))
	assert.False(t, isRetryable(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.False(t, isRetryable(errors.New("boom")))
}

func TestMigrateDSN(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", migrateDSN("postgres://u:p@h:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://u@h/db", migrateDSN("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://x", migrateDSN("pgx5://x"))
}
