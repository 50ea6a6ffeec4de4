package txn

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txsignal/internal/record"
)

func TestRun_CommitsOnSuccess(t *testing.T) {
	c := &memCommitter{}
	m := newTestManager(c)

	committed, err := m.Run(context.Background(), func(ctx context.Context) error {
		s, err := ActiveFromContext(ctx)
		if err != nil {
			return err
		}
		return s.Stage(pendingRecord("A"))
	})
	require.NoError(t, err)
	require.Len(t, committed, 1)
	assert.Equal(t, "rec-1", committed[0].ID)
	assert.Equal(t, 1, c.total())
}

func TestRun_RollsBackAndReturnsSameError(t *testing.T) {
	c := &memCommitter{}
	m := newTestManager(c)
	failure := errors.New("rollback triggered")

	var scope *Scope
	_, err := m.Run(context.Background(), func(ctx context.Context) error {
		scope, _ = FromContext(ctx)
		_ = scope.Stage(pendingRecord("A"))
		_ = scope.Stage(pendingRecord("B"))
		return failure
	})

	assert.Same(t, failure, err, "error must surface verbatim")
	assert.Equal(t, StateRolledBack, scope.State())
	assert.Equal(t, 0, c.total(), "all writes of the scope are discarded")
}

func TestRun_RollsBackOnPanic(t *testing.T) {
	c := &memCommitter{}
	m := newTestManager(c)

	var scope *Scope
	assert.PanicsWithValue(t, "boom", func() {
		_, _ = m.Run(context.Background(), func(ctx context.Context) error {
			scope, _ = FromContext(ctx)
			_ = scope.Stage(pendingRecord("A"))
			panic("boom")
		})
	})

	assert.Equal(t, StateRolledBack, scope.State())
	assert.Equal(t, 0, c.total())
}

func TestRun_FnClosesScopeItself(t *testing.T) {
	m := newTestManager(&memCommitter{})

	_, err := m.Run(context.Background(), func(ctx context.Context) error {
		s, _ := FromContext(ctx)
		return s.Rollback()
	})
	assert.ErrorIs(t, err, ErrScopeClosed, "commit of an already closed scope reports it")
}

func TestRun_NestedRejected(t *testing.T) {
	m := newTestManager(&memCommitter{})

	_, err := m.Run(context.Background(), func(ctx context.Context) error {
		_, err := m.Run(ctx, func(context.Context) error { return nil })
		return err
	})
	assert.ErrorIs(t, err, ErrScopeActive)
}

func TestRun_EmptyScopeCommits(t *testing.T) {
	m := newTestManager(&memCommitter{})

	committed, err := m.Run(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Empty(t, committed)
}

func TestRun_ConcurrentScopesAreIsolated(t *testing.T) {
	c := &memCommitter{}
	m := newTestManager(c)

	release := make(chan struct{})
	staged := make(chan *Scope, 2)
	var wg sync.WaitGroup

	for _, name := range []string{"left", "right"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Run(context.Background(), func(ctx context.Context) error {
				s, _ := FromContext(ctx)
				if err := s.Stage(pendingRecord(name)); err != nil {
					return err
				}
				staged <- s
				<-release
				return nil
			})
			assert.NoError(t, err)
		}()
	}

	a, b := <-staged, <-staged
	assert.NotSame(t, a, b)
	assert.Equal(t, 1, a.PendingCount(record.DefaultKind), "scope sees only its own pending write")
	assert.Equal(t, 1, b.PendingCount(record.DefaultKind))
	assert.Equal(t, 0, c.total(), "nothing durable before commit")

	close(release)
	wg.Wait()
	assert.Equal(t, 2, c.total())
}
