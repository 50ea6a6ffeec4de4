package txn

import "errors"

var (
	// ErrNoActiveScope is returned when a write is attempted outside any
	// active transaction scope.
	ErrNoActiveScope = errors.New("no active transaction scope")

	// ErrScopeActive is returned by Begin when the context already carries an
	// active scope. Nested scopes are not supported.
	ErrScopeActive = errors.New("transaction scope already active in this context")

	// ErrScopeClosed is returned when committing, rolling back or writing to
	// a scope that already reached a terminal state.
	ErrScopeClosed = errors.New("transaction scope is closed")

	// ErrRollbackOnly is returned by Commit when a write inside the scope
	// failed. The scope is rolled back instead; the cause is wrapped too.
	ErrRollbackOnly = errors.New("transaction scope is marked rollback-only")
)
