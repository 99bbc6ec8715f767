package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// TxManager owns transaction boundaries. fn runs inside one transaction that
// commits when fn returns nil and rolls back on error or panic.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, exec SQLExecutor) error) error
}

type sqlTxManager struct {
	db          *sql.DB
	lockTimeout time.Duration
	logger      *slog.Logger
}

// NewSQLTxManager bounds every row lock wait by lockTimeout (0 disables the bound).
func NewSQLTxManager(db *sql.DB, lockTimeout time.Duration, logger *slog.Logger) TxManager {
	return &sqlTxManager{db: db, lockTimeout: lockTimeout, logger: logger}
}

func (m *sqlTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, exec SQLExecutor) error) (txErr error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.logger.Error("transaction rollback failed", slog.Any("error", rbErr), slog.Any("cause", txErr))
				txErr = fmt.Errorf("transaction processing error: %w (rollback also failed: %v)", txErr, rbErr)
			}
		} else if cErr := tx.Commit(); cErr != nil {
			txErr = mapPQError(fmt.Errorf("failed to commit transaction: %w", cErr), nil)
		}
	}()

	if m.lockTimeout > 0 {
		// SET LOCAL does not accept bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	return fn(ctx, tx)
}
