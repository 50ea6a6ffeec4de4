package dispatch

import (
	"context"
	"time"

	"github.com/roach88/txsignal/internal/record"
)

// EventKind names what happened to the payload.
type EventKind string

const (
	// EventCreated fires after a record is staged in a scope, before commit.
	EventCreated EventKind = "created"
)

// Event describes a completed but not yet committed mutation.
// Events are values: listeners cannot change what later listeners see.
type Event struct {
	Kind   EventKind
	Source string // entity kind of the payload

	// Payload is the pending record. It has a ProvisionalID but no ID yet.
	Payload record.Record

	OccurredAt time.Time

	// ExecutionID identifies the execution context that produced the event.
	ExecutionID string
}

// NewCreated builds the created event for a pending record.
func NewCreated(ctx context.Context, rec record.Record, at time.Time) Event {
	return Event{
		Kind:        EventCreated,
		Source:      rec.Kind,
		Payload:     rec,
		OccurredAt:  at,
		ExecutionID: ExecutionID(ctx),
	}
}

type executionKey struct{}

// WithExecutionID returns a context that identifies its execution context.
// Entry points set this once per invocation.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionKey{}, id)
}

// ExecutionID returns the execution identifier carried by ctx, or "".
func ExecutionID(ctx context.Context) string {
	id, _ := ctx.Value(executionKey{}).(string)
	return id
}
