package dispatch

import (
	"context"
	"errors"
)

// Handler is a synchronous listener callback. It may block, read store state
// through ctx, and fail; a failure rolls back the enclosing scope.
type Handler interface {
	Invoke(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event) error

// Invoke calls f(ctx, ev).
func (f HandlerFunc) Invoke(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Listener is a named handler.
type Listener struct {
	Name    string
	Handler Handler
}

// ErrInvalidListener is returned by Register for a nameless or nil listener.
var ErrInvalidListener = errors.New("invalid listener")

type registryKey struct {
	kind   EventKind
	source string
}

// Builder collects registrations before the registry is frozen.
// A Builder is not safe for concurrent use.
type Builder struct {
	listeners map[registryKey][]Listener
	count     int
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{listeners: make(map[registryKey][]Listener)}
}

// Register appends a listener for (kind, source). Registering the same
// handler twice makes it fire twice.
func (b *Builder) Register(kind EventKind, source, name string, h Handler) error {
	if name == "" || h == nil || kind == "" || source == "" {
		return ErrInvalidListener
	}
	k := registryKey{kind: kind, source: source}
	b.listeners[k] = append(b.listeners[k], Listener{Name: name, Handler: h})
	b.count++
	return nil
}

// Build freezes the registrations made so far into a Registry. Later calls
// to Register do not affect the returned Registry.
func (b *Builder) Build() *Registry {
	frozen := make(map[registryKey][]Listener, len(b.listeners))
	for k, ls := range b.listeners {
		cp := make([]Listener, len(ls))
		copy(cp, ls)
		frozen[k] = cp
	}
	return &Registry{listeners: frozen, count: b.count}
}

// Registry maps (event kind, source kind) to listeners in registration order.
// It is immutable and safe for concurrent use.
type Registry struct {
	listeners map[registryKey][]Listener
	count     int
}

// Listeners returns the listeners for (kind, source), in registration order.
// The returned slice must not be modified.
func (r *Registry) Listeners(kind EventKind, source string) []Listener {
	if r == nil {
		return nil
	}
	return r.listeners[registryKey{kind: kind, source: source}]
}

// Len returns the total number of registrations.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return r.count
}
