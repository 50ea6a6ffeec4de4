package dispatch

import (
	"errors"
	"fmt"
)

// ListenerError reports that a listener failed during dispatch.
// It is surfaced verbatim through the record store and the scope.
type ListenerError struct {
	// Listener is the registered name of the failing listener.
	Listener string

	// Position is the listener's index in registration order.
	Position int

	Kind   EventKind
	Source string

	// Err is what the listener returned.
	Err error
}

// Error implements the error interface.
func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %q failed on %s %s: %v", e.Listener, e.Source, e.Kind, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}

// IsListenerFailure returns true if err is or wraps a ListenerError.
func IsListenerFailure(err error) bool {
	var le *ListenerError
	return errors.As(err, &le)
}
