package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/seat-booking/internal/model"
)

// MySQL server error numbers that indicate contention rather than a bad
// statement.  Both abort only the statement or transaction and are safe
// to retry.
const (
	erLockWaitTimeout uint16 = 1205
	erLockDeadlock    uint16 = 1213
)

// WithTx runs fn inside a transaction.  The transaction is committed when
// fn returns nil and rolled back otherwise.  Errors are passed through
// Classify so lock contention surfaces as model.ErrTransient.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Classify(fmt.Errorf("begin tx: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return Classify(err)
	}
	if err := tx.Commit(); err != nil {
		return Classify(fmt.Errorf("commit tx: %w", err))
	}
	committed = true
	return nil
}

// Classify marks lock wait timeouts, deadlocks and dropped connections as
// transient.  Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, model.ErrTransient) {
		return err
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == erLockWaitTimeout || me.Number == erLockDeadlock) {
		return fmt.Errorf("%w: %w", model.ErrTransient, err)
	}
	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", model.ErrTransient, err)
	}
	return err
}
