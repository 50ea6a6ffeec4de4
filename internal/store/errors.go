package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// CommitConflictError reports that a record could not be made durable
// because its identity collided with one already committed.
type CommitConflictError struct {
	// ID is the permanent identity that was being assigned.
	ID string

	// ProvisionalID is the pending record's identity.
	ProvisionalID string

	// Err is the underlying driver error.
	Err error
}

// Error implements the error interface.
func (e *CommitConflictError) Error() string {
	return fmt.Sprintf("commit conflict: record %s (provisional %s): %v", e.ID, e.ProvisionalID, e.Err)
}

func (e *CommitConflictError) Unwrap() error {
	return e.Err
}

// IsCommitConflict returns true if err is or wraps a CommitConflictError.
func IsCommitConflict(err error) bool {
	var ce *CommitConflictError
	return errors.As(err, &ce)
}

// isConstraintViolation reports whether err is a SQLite constraint failure
// (UNIQUE or PRIMARY KEY).
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrConstraint
}
