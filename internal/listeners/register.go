package listeners

import (
	"fmt"

	"github.com/roach88/txsignal/internal/config"
	"github.com/roach88/txsignal/internal/dispatch"
)

// CounterFor returns the Counter a listener uses for an entity kind.
type CounterFor func(kind string) Counter

// Register adds one Demo listener per configured entry to b, preserving
// configuration order. opts apply to every listener, before the per-entry
// delay and fail-on settings.
func Register(b *dispatch.Builder, cfgs []config.Listener, counterFor CounterFor, opts ...Option) error {
	for _, c := range cfgs {
		lopts := make([]Option, 0, len(opts)+2)
		lopts = append(lopts, opts...)
		lopts = append(lopts, WithDelay(c.Delay), WithFailOn(c.FailOn...))
		l := NewDemo(c.Name, counterFor(c.CountKind), lopts...)

		if err := b.Register(dispatch.EventKind(c.Event), c.Source, c.Name, l); err != nil {
			return fmt.Errorf("register listener %q: %w", c.Name, err)
		}
	}
	return nil
}
