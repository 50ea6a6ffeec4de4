// Package entry holds the entry points that trigger a record creation and
// report what happened.
//
// TriggerCreate lets the transaction manager demarcate the scope.
// TriggerCreateInExplicitTransaction opens and closes the scope by hand.
// Both block until every listener has returned and the scope is closed.
// Listener failures do not escape as panics or returned errors. They are
// reported in the Outcome, the way a request handler reports a failed
// request.
package entry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/txsignal/internal/dispatch"
	"github.com/roach88/txsignal/internal/record"
	"github.com/roach88/txsignal/internal/records"
	"github.com/roach88/txsignal/internal/store"
	"github.com/roach88/txsignal/internal/txn"
)

// Status is how an entry point's scope closed.
type Status string

const (
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
)

// Outcome reports one entry point invocation.
type Outcome struct {
	ExecutionID string `json:"execution_id"`
	Name        string `json:"name"`
	Explicit    bool   `json:"explicit"`

	// Before is taken just before the write, After once the scope closed.
	Before   time.Time     `json:"before"`
	After    time.Time     `json:"after"`
	Duration time.Duration `json:"duration"`

	Status Status         `json:"status"`
	Record *record.Record `json:"record,omitempty"`

	// CountAfter is the committed count once the scope closed, or -1 if it
	// could not be read.
	CountAfter int `json:"count_after"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// OK reports whether the scope committed.
func (o Outcome) OK() bool {
	return o.Status == StatusCommitted
}

// Service runs entry points against one record store.
type Service struct {
	txm   *txn.Manager
	store *records.Store

	ids         record.IDGenerator
	now         func() time.Time
	logger      *slog.Logger
	fanoutLimit int
}

// Option configures a Service.
type Option func(*Service)

// WithExecutionIDs sets the generator for execution IDs. Default: UUIDv7.
func WithExecutionIDs(g record.IDGenerator) Option {
	return func(s *Service) {
		s.ids = g
	}
}

// WithNow sets the wall clock for Before and After.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithFanoutLimit caps how many Fanout executions run at once.
// Zero or negative means no limit.
func WithFanoutLimit(n int) Option {
	return func(s *Service) {
		s.fanoutLimit = n
	}
}

// NewService creates a Service.
func NewService(txm *txn.Manager, store *records.Store, opts ...Option) *Service {
	s := &Service{
		txm:    txm,
		store:  store,
		ids:    record.UUIDv7Generator{},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TriggerCreate creates one record in a scope demarcated by the manager.
func (s *Service) TriggerCreate(ctx context.Context, name string) Outcome {
	ctx, out := s.start(ctx, name, false)

	committed, err := s.txm.Run(ctx, func(ctx context.Context) error {
		_, err := s.store.Create(ctx, name)
		return err
	})

	return s.finish(ctx, out, committed, err)
}

// TriggerCreateInExplicitTransaction creates one record in a scope opened,
// committed and rolled back by hand.
func (s *Service) TriggerCreateInExplicitTransaction(ctx context.Context, name string) Outcome {
	ctx, out := s.start(ctx, name, true)

	committed, err := s.createExplicit(ctx, name)
	return s.finish(ctx, out, committed, err)
}

func (s *Service) createExplicit(ctx context.Context, name string) ([]record.Record, error) {
	scopeCtx, scope, err := s.txm.Begin(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Create(scopeCtx, name); err != nil {
		if rbErr := scope.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "scope_id", scope.ID(), "error", rbErr)
		}
		return nil, err
	}

	return scope.Commit(scopeCtx)
}

// Fanout runs one trigger per name, each on its own goroutine with its own
// execution ID. Outcomes are returned in the order of names.
func (s *Service) Fanout(ctx context.Context, names []string, explicit bool) []Outcome {
	outcomes := make([]Outcome, len(names))

	var g errgroup.Group
	if s.fanoutLimit > 0 {
		g.SetLimit(s.fanoutLimit)
	}
	for i, name := range names {
		g.Go(func() error {
			if explicit {
				outcomes[i] = s.TriggerCreateInExplicitTransaction(ctx, name)
			} else {
				outcomes[i] = s.TriggerCreate(ctx, name)
			}
			return nil
		})
	}
	// Failures are reported per outcome.
	_ = g.Wait()

	return outcomes
}

func (s *Service) start(ctx context.Context, name string, explicit bool) (context.Context, Outcome) {
	execID := s.ids.Generate()
	out := Outcome{
		ExecutionID: execID,
		Name:        name,
		Explicit:    explicit,
		Before:      s.now(),
	}

	s.logger.Info("trigger started",
		"execution_id", execID,
		"name", name,
		"explicit", explicit,
		"before", out.Before,
	)
	return dispatch.WithExecutionID(ctx, execID), out
}

func (s *Service) finish(ctx context.Context, out Outcome, committed []record.Record, err error) Outcome {
	out.After = s.now()
	out.Duration = out.After.Sub(out.Before)

	if err != nil {
		out.Status = StatusRolledBack
		out.Err = err
		out.Error = err.Error()
	} else {
		out.Status = StatusCommitted
		if len(committed) > 0 {
			rec := committed[0]
			out.Record = &rec
		}
	}

	// ctx carries no scope here, so this is the committed count. It is read
	// even when ctx was cancelled during the trigger.
	n, countErr := s.store.Count(context.WithoutCancel(ctx))
	if countErr != nil {
		s.logger.Error("count after transaction failed", "execution_id", out.ExecutionID, "error", countErr)
		n = -1
	}
	out.CountAfter = n

	attrs := []any{
		"execution_id", out.ExecutionID,
		"name", out.Name,
		"status", string(out.Status),
		"duration", out.Duration,
		"count_after", out.CountAfter,
	}
	if err != nil {
		s.logger.Warn("trigger rolled back", append(attrs, "error", err)...)
	} else {
		s.logger.Info("trigger committed", attrs...)
	}
	return out
}

// Error kinds reported by Classify.
const (
	KindListenerFailure = "listener_failure"
	KindNoActiveScope   = "no_active_scope"
	KindInvalidName     = "invalid_name"
	KindCommitConflict  = "commit_conflict"
	KindRollbackOnly    = "rollback_only"
	KindCancelled       = "cancelled"
	KindInternal        = "internal"
)

// Classify names the failure category of err, or "" for nil.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, txn.ErrRollbackOnly):
		return KindRollbackOnly
	case dispatch.IsListenerFailure(err):
		return KindListenerFailure
	case errors.Is(err, txn.ErrNoActiveScope):
		return KindNoActiveScope
	case errors.Is(err, record.ErrInvalidName):
		return KindInvalidName
	case store.IsCommitConflict(err):
		return KindCommitConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindInternal
	}
}
