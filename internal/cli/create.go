package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/txsignal/internal/entry"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Explicit bool
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create one record and notify its listeners",
		Long: `Create one record inside a transaction scope.

Every listener registered for the record's kind runs before the command
returns. If a listener fails, the scope rolls back and the record is not
stored.

Exit codes:
  0 - Record committed
  1 - Scope rolled back
  2 - Command error (bad config, database not found, etc.)

Examples:
  txsignal create "Sync Test"
  txsignal create "Rollback Test" --explicit
  txsignal create "Quick" --delay 0s --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Explicit, "explicit", false, "open and close the scope by hand instead of through the manager")

	return cmd
}

func runCreate(opts *CreateOptions, name string, cmd *cobra.Command) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := openApp(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	var out entry.Outcome
	if opts.Explicit {
		out = a.service.TriggerCreateInExplicitTransaction(ctx, name)
	} else {
		out = a.service.TriggerCreate(ctx, name)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		if out.Err != nil {
			if err := f.Error(entry.Classify(out.Err), out.Error, out); err != nil {
				return err
			}
		} else if err := f.Success(out); err != nil {
			return err
		}
	} else {
		writeOutcome(cmd.OutOrStdout(), out)
	}

	if out.Err != nil {
		return WrapExitError(ExitFailure, "scope rolled back", out.Err)
	}
	return nil
}

// signalContext returns the command context, cancelled on SIGINT or SIGTERM.
// Cancellation interrupts blocking listeners and rolls their scopes back.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// writeOutcome prints one outcome as a line of text.
func writeOutcome(w io.Writer, o entry.Outcome) {
	mode := ""
	if o.Explicit {
		mode = " (explicit)"
	}
	fmt.Fprintf(w, "[%s] create %q%s: %s in %s, count after: %d\n",
		o.ExecutionID, o.Name, mode, o.Status, o.Duration.Round(time.Millisecond), o.CountAfter)
	if o.Err != nil {
		fmt.Fprintf(w, "  %s: %s\n", entry.Classify(o.Err), o.Error)
	}
}
