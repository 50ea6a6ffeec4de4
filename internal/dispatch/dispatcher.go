package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/txsignal/internal/metrics"
)

// Result is the outcome of dispatching one event.
type Result struct {
	Event Event

	// Invoked lists the listeners that ran, in order, including a failing one.
	Invoked []string

	// Failure is set when a listener failed; later listeners did not run.
	Failure *ListenerError

	// Duration is how long the caller was blocked.
	Duration time.Duration
}

// Err returns Failure as an error, or nil.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// Dispatcher invokes registered listeners synchronously.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a Dispatcher over a frozen registry.
// A nil registry dispatches to nobody.
func NewDispatcher(r *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher reads from.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch invokes every listener for (ev.Kind, ev.Source) in registration
// order on the calling goroutine. It returns when all listeners have
// returned, or as soon as one fails.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Result {
	listeners := d.registry.Listeners(ev.Kind, ev.Source)
	result := Result{Event: ev, Invoked: make([]string, 0, len(listeners))}
	if len(listeners) == 0 {
		return result
	}

	start := time.Now()
	defer func() {
		d.metrics.DispatchObserved(string(ev.Kind), ev.Source, result.Duration)
	}()

	d.logger.Debug("dispatching event",
		"event", ev.Kind,
		"source", ev.Source,
		"provisional_id", ev.Payload.ProvisionalID,
		"execution_id", ev.ExecutionID,
		"listeners", len(listeners),
	)

	for i, l := range listeners {
		result.Invoked = append(result.Invoked, l.Name)

		if err := l.Handler.Invoke(ctx, ev); err != nil {
			d.metrics.ListenerInvoked(l.Name, metrics.ResultFailure)
			result.Failure = &ListenerError{
				Listener: l.Name,
				Position: i,
				Kind:     ev.Kind,
				Source:   ev.Source,
				Err:      err,
			}
			result.Duration = time.Since(start)

			d.logger.Warn("listener failed, aborting dispatch",
				"listener", l.Name,
				"position", i,
				"skipped", len(listeners)-i-1,
				"execution_id", ev.ExecutionID,
				"error", err,
			)
			return result
		}

		d.metrics.ListenerInvoked(l.Name, metrics.ResultOK)
	}

	result.Duration = time.Since(start)
	return result
}
