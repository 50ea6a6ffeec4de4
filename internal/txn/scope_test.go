package txn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txsignal/internal/metrics"
	"github.com/roach88/txsignal/internal/record"
	"github.com/roach88/txsignal/internal/store"
)

// memCommitter is an in-memory Committer that records what it was given.
type memCommitter struct {
	mu      sync.Mutex
	batches [][]record.Record
	next    int
	err     error
}

func (c *memCommitter) CommitRecords(_ context.Context, pending []record.Record) ([]record.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	out := make([]record.Record, len(pending))
	for i, rec := range pending {
		c.next++
		rec.ID = fmt.Sprintf("rec-%d", c.next)
		out[i] = rec
	}
	c.batches = append(c.batches, out)
	return out, nil
}

func (c *memCommitter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(c Committer, opts ...Option) *Manager {
	return NewManager(c, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func pendingRecord(name string) record.Record {
	return record.Record{ProvisionalID: "p-" + name, Kind: record.DefaultKind, Name: name}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "committed", StateCommitted.String())
	assert.Equal(t, "rolled_back", StateRolledBack.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestBegin_CarriesScopeInContext(t *testing.T) {
	m := newTestManager(&memCommitter{}, WithIDGenerator(record.NewFixedGenerator("scope-1")))

	ctx, s, err := m.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "scope-1", s.ID())
	assert.Equal(t, StateActive, s.State())

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestBegin_RejectsNesting(t *testing.T) {
	m := newTestManager(&memCommitter{})

	ctx, _, err := m.Begin(context.Background())
	require.NoError(t, err)

	_, _, err = m.Begin(ctx)
	assert.ErrorIs(t, err, ErrScopeActive)
}

func TestBegin_AllowedAfterOuterScopeClosed(t *testing.T) {
	m := newTestManager(&memCommitter{})

	ctx, s, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Rollback())

	_, s2, err := m.Begin(ctx)
	require.NoError(t, err)
	assert.True(t, s2.Active())
}

func TestActiveFromContext(t *testing.T) {
	m := newTestManager(&memCommitter{})

	_, err := ActiveFromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveScope)

	ctx, s, err := m.Begin(context.Background())
	require.NoError(t, err)

	got, err := ActiveFromContext(ctx)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, s.Rollback())
	_, err = ActiveFromContext(ctx)
	assert.ErrorIs(t, err, ErrNoActiveScope, "closed scope is not active")
}

func TestCommit_WritesPendingInOrder(t *testing.T) {
	c := &memCommitter{}
	m := newTestManager(c)

	ctx, s, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Stage(pendingRecord("A")))
	require.NoError(t, s.Stage(pendingRecord("B")))

	committed, err := s.Commit(ctx)
	require.NoError(t, err)
	require.Len(t, committed, 2)
	assert.Equal(t, "A", committed[0].Name)
	assert.Equal(t, "rec-1", committed[0].ID)
	assert.Equal(t, "B", committed[1].Name)
	assert.Equal(t, StateCommitted, s.State())
	assert.Empty(t, s.Pending())
}

func TestCommit_TerminalStates(t *testing.T) {
	m := newTestManager(&memCommitter{})

	ctx, s, err := m.Begin(context.Background())
	require.NoError(t, err)
	_, err = s.Commit(ctx)
	require.NoError(t, err)

	_, err = s.Commit(ctx)
	assert.ErrorIs(t, err, ErrScopeClosed)
	assert.ErrorIs(t, s.Rollback(), ErrScopeClosed)
	assert.ErrorIs(t, s.Stage(pendingRecord("late")), ErrScopeClosed)
	assert.Equal(t, StateCommitted, s.State())
}

func TestRollback_DiscardsPending(t *testing.T) {
	c := &memCommitter{}
	m := newTestManager(c)

	ctx, s, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Stage(pendingRecord("A")))
	assert.Equal(t, 1, s.PendingCount(record.DefaultKind))

	require.NoError(t, s.Rollback())
	assert.Equal(t, StateRolledBack, s.State())
	assert.Empty(t, s.Pending())
	assert.Equal(t, 0, c.total())

	_, err = s.Commit(ctx)
	assert.ErrorIs(t, err, ErrScopeClosed)
	assert.Equal(t, StateRolledBack, s.State())
}

func TestPendingCount_ByKind(t *testing.T) {
	m := newTestManager(&memCommitter{})

	_, s, err := m.Begin(context.Background())
	require.NoError(t, err)

	other := pendingRecord("X")
	other.Kind = "Other"
	require.NoError(t, s.Stage(pendingRecord("A")))
	require.NoError(t, s.Stage(other))
	require.NoError(t, s.Stage(pendingRecord("B")))

	assert.Equal(t, 2, s.PendingCount(record.DefaultKind))
	assert.Equal(t, 1, s.PendingCount("Other"))
	assert.Equal(t, 0, s.PendingCount("None"))
}

func TestCommit_RollbackOnly(t *testing.T) {
	c := &memCommitter{}
	m := newTestManager(c)
	cause := errors.New("listener exploded")

	ctx, s, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Stage(pendingRecord("A")))
	s.MarkRollbackOnly(cause)
	s.MarkRollbackOnly(errors.New("second cause ignored"))
	assert.True(t, s.RollbackOnly())

	_, err = s.Commit(ctx)
	assert.ErrorIs(t, err, ErrRollbackOnly)
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, err.Error(), "second cause")
	assert.Equal(t, StateRolledBack, s.State())
	assert.Equal(t, 0, c.total())
}

func TestCommit_CommitterFailureRollsBack(t *testing.T) {
	boom := errors.New("disk full")
	m := newTestManager(&memCommitter{err: boom})

	ctx, s, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Stage(pendingRecord("A")))

	_, err = s.Commit(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateRolledBack, s.State())
}

func TestCommit_ConflictFromStoreIsRepresentable(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"),
		store.WithIDGenerator(record.NewFixedGenerator("rec-1", "rec-1")))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := newTestManager(st)

	_, err = m.Run(context.Background(), func(ctx context.Context) error {
		s, _ := FromContext(ctx)
		return s.Stage(pendingRecord("A"))
	})
	require.NoError(t, err)

	_, err = m.Run(context.Background(), func(ctx context.Context) error {
		s, _ := FromContext(ctx)
		return s.Stage(pendingRecord("B"))
	})
	require.Error(t, err)
	assert.True(t, store.IsCommitConflict(err))
}

func TestScope_MetricsOnClose(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newTestManager(&memCommitter{}, WithMetrics(metrics.New(reg)))

	ctx, s, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Stage(pendingRecord("A")))
	_, err = s.Commit(ctx)
	require.NoError(t, err)

	_, s, err = m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Stage(pendingRecord("B")))
	require.NoError(t, s.Rollback())

	// One series per outcome.
	count, err := testutil.GatherAndCount(reg, "txsignal_scopes_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
