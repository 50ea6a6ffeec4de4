package txn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/txsignal/internal/metrics"
	"github.com/roach88/txsignal/internal/record"
)

// Committer makes a scope's pending records durable in one atomic step.
// Implemented by *store.Store.
type Committer interface {
	CommitRecords(ctx context.Context, pending []record.Record) ([]record.Record, error)
}

// Manager opens scopes and serializes their commits.
type Manager struct {
	committer Committer
	ids       record.IDGenerator
	logger    *slog.Logger
	metrics   *metrics.Metrics

	commitMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithIDGenerator sets the generator for scope IDs. Default: UUIDv7.
func WithIDGenerator(g record.IDGenerator) Option {
	return func(m *Manager) {
		m.ids = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a Manager that commits through c.
func NewManager(c Committer, opts ...Option) *Manager {
	m := &Manager{
		committer: c,
		ids:       record.UUIDv7Generator{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin opens an Active scope and returns a context carrying it.
// Fails with ErrScopeActive if ctx already carries an active scope.
func (m *Manager) Begin(ctx context.Context) (context.Context, *Scope, error) {
	if existing, ok := FromContext(ctx); ok && existing.Active() {
		return ctx, nil, ErrScopeActive
	}

	s := &Scope{
		id:     m.ids.Generate(),
		mgr:    m,
		opened: time.Now(),
		state:  StateActive,
	}

	m.logger.Debug("scope opened", "scope_id", s.id)
	return context.WithValue(ctx, scopeKey{}, s), s, nil
}

// Run executes fn inside a new scope.
//
// If fn returns an error the scope is rolled back and that same error is
// returned, so errors.Is and errors.As see the original failure. If fn panics
// the scope is rolled back and the panic continues. Otherwise the scope is
// committed and the durable records are returned.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context) error) ([]record.Record, error) {
	scopeCtx, s, err := m.Begin(ctx)
	if err != nil {
		return nil, err
	}

	// done stays false only when fn panics.
	done := false
	defer func() {
		if !done {
			_ = s.Rollback()
		}
	}()

	err = fn(scopeCtx)
	done = true
	if err != nil {
		// fn may already have closed the scope itself.
		_ = s.Rollback()
		return nil, err
	}

	return s.Commit(scopeCtx)
}
