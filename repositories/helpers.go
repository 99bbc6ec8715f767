package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var (
	// ErrLockNotAvailable covers lock_timeout expiry, NOWAIT failures and deadlock victims.
	ErrLockNotAvailable = errors.New("row lock not available")
	ErrUniqueViolation  = errors.New("unique constraint violated")
)

const (
	pqCodeUniqueViolation      = "23505"
	pqCodeForeignKeyViolation  = "23503"
	pqCodeLockNotAvailable     = "55P03"
	pqCodeDeadlockDetected     = "40P01"
	pqCodeSerializationFailure = "40001"
)

// mapPQError translates driver errors into repository sentinels. Constraint
// specific sentinels take precedence over the generic unique violation.
func mapPQError(err error, constraints map[string]error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqCodeLockNotAvailable, pqCodeDeadlockDetected, pqCodeSerializationFailure:
		return fmt.Errorf("%w: %s", ErrLockNotAvailable, pqErr.Message)
	case pqCodeUniqueViolation, pqCodeForeignKeyViolation:
		if sentinel, ok := constraints[pqErr.Constraint]; ok {
			return sentinel
		}
		if pqErr.Code == pqCodeUniqueViolation {
			return fmt.Errorf("%w (%s)", ErrUniqueViolation, pqErr.Constraint)
		}
	}
	return err
}

func checkAffectedRows(result sql.Result, notFoundError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundError
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func toInt64s(ids []int) pq.Int64Array {
	out := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func fromInt64s(ids pq.Int64Array) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}
