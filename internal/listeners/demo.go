package listeners

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/txsignal/internal/dispatch"
)

// ErrRollbackRequested is returned by a Demo listener for a record whose name
// is in its fail-on set.
var ErrRollbackRequested = errors.New("rollback triggered from listener")

// Counter reports how many records of some kind are visible from ctx.
// Implemented by *records.Reader.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper. It returns ctx.Err() if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Demo is a listener that waits, reads the visible record count, and fails
// for configured record names.
type Demo struct {
	name    string
	delay   time.Duration
	failOn  map[string]struct{}
	counter Counter

	sleep    Sleeper
	now      func() time.Time
	logger   *slog.Logger
	recorder *Recorder
}

// Option configures a Demo listener.
type Option func(*Demo)

// WithDelay sets how long the listener blocks before counting.
func WithDelay(d time.Duration) Option {
	return func(l *Demo) {
		l.delay = d
	}
}

// WithFailOn sets the record names the listener rejects. Names are compared
// in NFC, the form records are stored in.
func WithFailOn(names ...string) Option {
	return func(l *Demo) {
		for _, n := range names {
			l.failOn[norm.NFC.String(n)] = struct{}{}
		}
	}
}

// WithSleeper replaces the blocking primitive. Tests use this to avoid real
// waits.
func WithSleeper(s Sleeper) Option {
	return func(l *Demo) {
		l.sleep = s
	}
}

// WithNow sets the wall clock used for observation timestamps.
func WithNow(now func() time.Time) Option {
	return func(l *Demo) {
		l.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(lg *slog.Logger) Option {
	return func(l *Demo) {
		l.logger = lg
	}
}

// WithRecorder makes the listener report every invocation to r.
func WithRecorder(r *Recorder) Option {
	return func(l *Demo) {
		l.recorder = r
	}
}

// NewDemo creates a Demo listener that counts through counter.
func NewDemo(name string, counter Counter, opts ...Option) *Demo {
	l := &Demo{
		name:    name,
		failOn:  make(map[string]struct{}),
		counter: counter,
		sleep:   Sleep,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the registered listener name.
func (l *Demo) Name() string {
	return l.name
}

// Invoke implements dispatch.Handler.
func (l *Demo) Invoke(ctx context.Context, ev dispatch.Event) error {
	obs := Observation{
		Listener:    l.name,
		ExecutionID: ev.ExecutionID,
		Record:      ev.Payload.Name,
		Started:     l.now(),
		Count:       -1,
	}
	l.logger.Info("listener started",
		"listener", l.name,
		"execution_id", ev.ExecutionID,
		"record", ev.Payload.Name,
		"started", obs.Started,
	)

	err := l.run(ctx, ev, &obs)
	obs.Ended = l.now()
	if err != nil {
		obs.Err = err.Error()
	}
	l.recorder.observe(obs)

	if err != nil {
		l.logger.Info("listener failed",
			"listener", l.name,
			"execution_id", ev.ExecutionID,
			"error", err,
		)
		return err
	}

	l.logger.Info("listener finished",
		"listener", l.name,
		"execution_id", ev.ExecutionID,
		"count", obs.Count,
		"elapsed", obs.Ended.Sub(obs.Started),
	)
	return nil
}

func (l *Demo) run(ctx context.Context, ev dispatch.Event, obs *Observation) error {
	if err := l.sleep(ctx, l.delay); err != nil {
		return fmt.Errorf("wait %s: %w", l.delay, err)
	}

	n, err := l.counter.Count(ctx)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	obs.Count = n

	l.logger.Info("listener observed count",
		"listener", l.name,
		"execution_id", ev.ExecutionID,
		"count", n,
	)

	if _, reject := l.failOn[ev.Payload.Name]; reject {
		return fmt.Errorf("%w: record %q", ErrRollbackRequested, ev.Payload.Name)
	}
	return nil
}
