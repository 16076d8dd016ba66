package repository

import (
	"errors"
	"strings"
)

// ErrDuplicate indicates an insert hit a unique constraint on the natural
// key. For conversion rows this is the "already processed" branch of the
// idempotency contract, not a failure.
var ErrDuplicate = errors.New("duplicate: row with this natural key already exists")

// isUniqueViolation checks if an error is a unique constraint violation
// from the SQLite driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key")
}
