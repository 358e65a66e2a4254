package data

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrRecordNotFound = errors.New("record not found")

	// ErrStorageUnavailable marks transient failures (connectivity, shutdown,
	// resource exhaustion). Callers may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrStorageRejected marks permanent failures (constraint or data
	// violations). Retrying the same payload will never succeed.
	ErrStorageRejected = errors.New("storage rejected")
)

// DBTX is a common interface for *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// classifyStorageErr maps a driver error onto the retryable/permanent split.
// Postgres error classes 22 (data exception), 23 (integrity) and 42 (syntax/
// access) can never succeed on retry; everything else is treated as transient.
func classifyStorageErr(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23", "42":
			return fmt.Errorf("%w: %s (%s)", ErrStorageRejected, pqErr.Message, pqErr.Code)
		}
		return fmt.Errorf("%w: %s (%s)", ErrStorageUnavailable, pqErr.Message, pqErr.Code)
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	// Unknown driver/network errors default to transient.
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
