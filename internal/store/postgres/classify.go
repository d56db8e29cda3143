package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// Recoverable implements the database-specific half of the
// transaction-recoverable vs non-recoverable distinction that the
// Store adapter owns. An error is non-recoverable when the in-flight
// transaction T can no longer be
// used to record a failure Progress — a lost connection, a fatal
// backend error, or a serialization failure that already aborted T.
// Anything else (including ordinary handler-thrown application errors
// that never touched the database) is recoverable: append a failure
// Progress and retry within a fresh transaction next dispatch.
func Recoverable(err error) bool {
	if err == nil {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "08": // connection exception
			return false
		case "40": // transaction rollback (serialization failure, deadlock)
			return false
		case "53", "57", "58": // insufficient resources, operator intervention, system error
			return false
		default:
			return true
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		// A handler wall-time breach surfaces as a context deadline
		// and is treated as an ordinary recoverable handler failure,
		// not a transaction failure. Checked before net.Error, which
		// context.DeadlineExceeded also satisfies.
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return false
	}

	return true
}
