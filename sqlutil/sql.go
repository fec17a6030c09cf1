// Package sqlutil holds helpers shared by the postgres tables.
package sqlutil

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// WithTransaction gives fn a transaction which is committed when fn returns nil. An error or a
// panic from fn rolls it back; a panic is reported as an error. Cancelling ctx aborts the
// transaction.
func WithTransaction(ctx context.Context, db *sqlx.DB, fn func(txn *sqlx.Tx) error) (err error) {
	txn, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("WithTransaction: begin: %w", err)
	}
	defer func() {
		if r := recover(); r != nil && err == nil {
			err = fmt.Errorf("WithTransaction: panic: %v", r)
		}
		if err != nil {
			if rbErr := txn.Rollback(); rbErr != nil {
				logger.Warn().Err(rbErr).AnErr("cause", err).Msg("WithTransaction: rollback failed")
			}
			return
		}
		if commitErr := txn.Commit(); commitErr != nil {
			err = fmt.Errorf("WithTransaction: commit: %w", commitErr)
		}
	}()
	return fn(txn)
}
