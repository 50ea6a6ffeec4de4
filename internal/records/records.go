// Package records is the record store seen by application code: Create and
// Count for one entity kind, aware of the transaction scope in the context.
//
// Create is a dispatch point. It stages the record in the caller's scope,
// then synchronously notifies every listener registered for the kind's
// created event before returning. Listeners run inside the same scope, so
// Count and List from a listener include the record that triggered it.
package records

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/txsignal/internal/dispatch"
	"github.com/roach88/txsignal/internal/record"
	"github.com/roach88/txsignal/internal/txn"
)

// Durable is the committed record set. Implemented by *store.Store.
type Durable interface {
	CountRecords(ctx context.Context, kind string) (int, error)
	ListRecords(ctx context.Context, kind string) ([]record.Record, error)
}

// Reader counts and lists records of one kind without dispatching anything.
// Listeners read through a Reader, which avoids a construction cycle between
// the Store, its dispatcher and the listeners registered on it.
type Reader struct {
	kind    string
	durable Durable
}

// NewReader creates a Reader for kind.
func NewReader(durable Durable, kind string) *Reader {
	return &Reader{kind: kind, durable: durable}
}

// Kind returns the entity kind this reader covers.
func (r *Reader) Kind() string {
	return r.kind
}

// Store creates and counts records of a single entity kind.
type Store struct {
	Reader
	dispatcher *dispatch.Dispatcher
	clock      *record.Clock
	ids        record.IDGenerator
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithKind sets the entity kind. Default: record.DefaultKind.
func WithKind(kind string) Option {
	return func(s *Store) {
		s.Reader.kind = kind
	}
}

// WithClock sets the logical clock used for Seq. Stores sharing one durable
// set should share one clock.
func WithClock(c *record.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithIDGenerator sets the generator for provisional IDs.
func WithIDGenerator(g record.IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithNow sets the wall clock for CreatedAt and event timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a Store over a durable record set. d may be nil, in which case
// Create never notifies anyone.
func New(durable Durable, d *dispatch.Dispatcher, opts ...Option) *Store {
	s := &Store{
		Reader:     Reader{kind: record.DefaultKind, durable: durable},
		dispatcher: d,
		clock:      record.NewClock(),
		ids:        record.UUIDv7Generator{},
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stages a new record in the active scope carried by ctx and
// dispatches its created event before returning.
//
// Fails with txn.ErrNoActiveScope outside a scope and with
// record.ErrInvalidName for an unusable name. If a listener fails, the scope
// is marked rollback-only and the *dispatch.ListenerError is returned as is.
func (s *Store) Create(ctx context.Context, name string) (record.Record, error) {
	scope, err := txn.ActiveFromContext(ctx)
	if err != nil {
		return record.Record{}, fmt.Errorf("create %s %q: %w", s.kind, name, err)
	}

	normalized, err := record.NormalizeName(name)
	if err != nil {
		return record.Record{}, fmt.Errorf("create %s: %w", s.kind, err)
	}

	rec := record.Record{
		ProvisionalID: s.ids.Generate(),
		Kind:          s.kind,
		Name:          normalized,
		Seq:           s.clock.Next(),
		ScopeID:       scope.ID(),
		CreatedAt:     s.now(),
	}

	if err := scope.Stage(rec); err != nil {
		return record.Record{}, fmt.Errorf("create %s: %w", s.kind, err)
	}

	s.logger.Debug("record staged",
		"kind", rec.Kind,
		"name", rec.Name,
		"provisional_id", rec.ProvisionalID,
		"seq", rec.Seq,
		"scope_id", rec.ScopeID,
	)

	if s.dispatcher == nil {
		return rec, nil
	}

	res := s.dispatcher.Dispatch(ctx, dispatch.NewCreated(ctx, rec, s.now()))
	if err := res.Err(); err != nil {
		scope.MarkRollbackOnly(err)
		return record.Record{}, err
	}

	return rec, nil
}

// Count returns the committed records of the kind plus, inside an active
// scope, that scope's own pending records. Other scopes' pending records are
// never counted.
func (r *Reader) Count(ctx context.Context) (int, error) {
	n, err := r.durable.CountRecords(ctx, r.kind)
	if err != nil {
		return 0, err
	}

	if scope, ok := txn.FromContext(ctx); ok && scope.Active() {
		n += scope.PendingCount(r.kind)
	}
	return n, nil
}

// List returns committed records in seq order followed, inside an active
// scope, by that scope's pending records of the kind.
func (r *Reader) List(ctx context.Context) ([]record.Record, error) {
	list, err := r.durable.ListRecords(ctx, r.kind)
	if err != nil {
		return nil, err
	}

	if scope, ok := txn.FromContext(ctx); ok && scope.Active() {
		for _, rec := range scope.Pending() {
			if rec.Kind == r.kind {
				list = append(list, rec)
			}
		}
	}
	return list, nil
}
