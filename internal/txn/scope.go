package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/txsignal/internal/metrics"
	"github.com/roach88/txsignal/internal/record"
)

// State is a scope's position in its lifecycle.
type State int

const (
	StateActive State = iota
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Scope is one unit of work.
//
// INVARIANTS:
//   - state leaves Active exactly once
//   - pending is discarded on rollback and handed to the Committer on commit
//   - once rollbackCause is set, Commit rolls back
type Scope struct {
	id     string
	mgr    *Manager
	opened time.Time

	mu            sync.Mutex
	state         State
	pending       []record.Record
	rollbackCause error
}

// ID returns the scope identifier.
func (s *Scope) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Scope) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether the scope still accepts writes.
func (s *Scope) Active() bool {
	return s.State() == StateActive
}

// Stage appends a record to the pending writes.
func (s *Scope) Stage(rec record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return fmt.Errorf("stage %s in scope %s (%s): %w", rec.ProvisionalID, s.id, s.state, ErrScopeClosed)
	}
	s.pending = append(s.pending, rec)
	return nil
}

// Pending returns a copy of the pending writes in staging order.
func (s *Scope) Pending() []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]record.Record, len(s.pending))
	copy(out, s.pending)
	return out
}

// PendingCount returns how many pending writes have the given kind.
func (s *Scope) PendingCount(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.pending {
		if rec.Kind == kind {
			n++
		}
	}
	return n
}

// MarkRollbackOnly records that a write inside the scope failed. Commit will
// roll back and return cause. The first cause wins.
func (s *Scope) MarkRollbackOnly(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rollbackCause == nil {
		s.rollbackCause = cause
	}
}

// RollbackOnly reports whether a write inside the scope has failed.
func (s *Scope) RollbackOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbackCause != nil
}

// Commit makes every pending write durable, in staging order, and moves the
// scope to Committed.
//
// If the scope is rollback-only, or the Committer fails, the scope moves to
// RolledBack instead and the error is returned. Commits from different scopes
// never interleave.
func (s *Scope) Commit(ctx context.Context) ([]record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return nil, fmt.Errorf("commit scope %s (%s): %w", s.id, s.state, ErrScopeClosed)
	}

	if s.rollbackCause != nil {
		s.finish(StateRolledBack)
		return nil, fmt.Errorf("commit scope %s: %w: %w", s.id, ErrRollbackOnly, s.rollbackCause)
	}

	s.mgr.commitMu.Lock()
	committed, err := s.mgr.committer.CommitRecords(ctx, s.pending)
	s.mgr.commitMu.Unlock()

	if err != nil {
		s.finish(StateRolledBack)
		return nil, fmt.Errorf("commit scope %s: %w", s.id, err)
	}

	s.finish(StateCommitted)
	return committed, nil
}

// Rollback discards every pending write and moves the scope to RolledBack.
func (s *Scope) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return fmt.Errorf("rollback scope %s (%s): %w", s.id, s.state, ErrScopeClosed)
	}

	s.finish(StateRolledBack)
	return nil
}

// finish moves the scope to a terminal state. Caller holds s.mu.
func (s *Scope) finish(state State) {
	writes := len(s.pending)
	s.state = state
	s.pending = nil

	outcome := metrics.OutcomeCommitted
	if state == StateRolledBack {
		outcome = metrics.OutcomeRolledBack
	}
	s.mgr.metrics.ScopeClosed(outcome, writes)

	s.mgr.logger.Debug("scope closed",
		"scope_id", s.id,
		"state", state.String(),
		"writes", writes,
		"duration", time.Since(s.opened),
	)
}

type scopeKey struct{}

// FromContext returns the scope carried by ctx, if any. The scope may already
// be closed; use Active to check.
func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok
}

// ActiveFromContext returns the active scope carried by ctx, or
// ErrNoActiveScope.
func ActiveFromContext(ctx context.Context) (*Scope, error) {
	s, ok := FromContext(ctx)
	if !ok || !s.Active() {
		return nil, ErrNoActiveScope
	}
	return s, nil
}
