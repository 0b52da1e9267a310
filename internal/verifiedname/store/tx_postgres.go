package store

import (
	"context"
	"database/sql"
	"time"

	id "nameaffirm/pkg/domain"
	dErrors "nameaffirm/pkg/domain-errors"
	txcontext "nameaffirm/pkg/platform/tx"
)

// PostgresTx runs fn inside a database transaction holding a per-user
// advisory lock, so two deliveries for the same user never interleave their
// read-then-write sequences.
type PostgresTx struct {
	db      *sql.DB
	records *PostgresStore
	timeout time.Duration
}

// NewPostgresTx builds the transaction runner. A zero timeout means DefaultTxTimeout.
func NewPostgresTx(db *sql.DB, records *PostgresStore, timeout time.Duration) *PostgresTx {
	return &PostgresTx{db: db, records: records, timeout: timeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, userID id.UserID, fn func(ctx context.Context, records Records) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey(userID)); err != nil {
		return classify("acquire user lock", err)
	}

	if err := fn(txcontext.WithTx(ctx, tx), t.records); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}
