package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/txsignal/internal/entry"
)

// Names used by the demo views.
const (
	DemoSyncName        = "Sync Test"
	DemoThreadName      = "Thread Test"
	DemoTransactionName = "Rollback Test"
)

// DemoView is one demo step and what it produced.
type DemoView struct {
	View     string        `json:"view"`
	Outcome  entry.Outcome `json:"outcome"`
	Expected entry.Status  `json:"expected"`
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the sync, thread and transaction views",
		Long: `Run three creations in order against the configured listeners:

  sync         create "Sync Test" on the calling goroutine
  thread       create "Thread Test" on its own goroutine
  transaction  create "Rollback Test" in an explicit scope; the default
               listener rejects it, so the scope rolls back

With the built-in configuration every view blocks for three seconds while
the listener runs. Use --delay to shorten it.

Examples:
  txsignal demo
  txsignal demo --delay 100ms --db /tmp/demo.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(rootOpts, cmd)
		},
	}
	return cmd
}

func runDemo(opts *RootOptions, cmd *cobra.Command) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := openApp(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	views := []DemoView{
		{View: "sync", Outcome: a.service.TriggerCreate(ctx, DemoSyncName), Expected: entry.StatusCommitted},
		{View: "thread", Outcome: a.service.Fanout(ctx, []string{DemoThreadName}, false)[0], Expected: entry.StatusCommitted},
		{View: "transaction", Outcome: a.service.TriggerCreateInExplicitTransaction(ctx, DemoTransactionName), Expected: entry.StatusRolledBack},
	}

	unexpected := 0
	for _, v := range views {
		if v.Outcome.Status != v.Expected {
			unexpected++
		}
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		if err := f.Success(views); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, v := range views {
			fmt.Fprintf(w, "%s view:\n  ", v.View)
			writeOutcome(w, v.Outcome)
		}
		fmt.Fprintf(w, "Row count after transaction: %d\n", views[len(views)-1].Outcome.CountAfter)
	}

	if unexpected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d demo view(s) ended unexpectedly", unexpected))
	}
	return nil
}
