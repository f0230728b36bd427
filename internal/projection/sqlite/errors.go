package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors for the projection store, grounded on the teacher's
// internal/storage/sqlite/errors.go wrapDBError idiom.
var (
	// ErrNotFound indicates the requested address has no record in the
	// projection.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateBatch names the case of a commit event for a batch-id
	// already applied being delivered again. No function in this package
	// returns it: Apply treats a redelivered batch-id as success, not an
	// error, since event-bus redelivery is expected (see Apply's doc
	// comment).
	ErrDuplicateBatch = errors.New("batch already applied")
)

func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
