package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string // overrides the configured database path
	Config   string // CUE configuration file; empty uses the built-in default
	Metrics  bool   // dump Prometheus metrics to stderr on exit

	// Delay overrides every listener delay when DelaySet is true.
	Delay    time.Duration
	DelaySet bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the txsignal CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "txsignal",
		Short: "txsignal - synchronous in-transaction notifications",
		Long: `Create records inside a transaction scope and notify listeners
synchronously before the scope commits. Listeners block the caller, see the
scope's own uncommitted writes, and roll the whole scope back by failing.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.DelaySet = cmd.Flags().Changed("delay")
			if opts.DelaySet && opts.Delay < 0 {
				return fmt.Errorf("invalid delay %s: must not be negative", opts.Delay)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config: txsignal.db)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to CUE configuration file")
	cmd.PersistentFlags().BoolVar(&opts.Metrics, "metrics", false, "print Prometheus metrics to stderr on exit")
	cmd.PersistentFlags().DurationVar(&opts.Delay, "delay", 0, "override every listener delay")

	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
