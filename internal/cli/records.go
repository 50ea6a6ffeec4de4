package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/txsignal/internal/record"
)

// CountResult is the count command's output.
type CountResult struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Print the committed record count",
		Long: `Print how many records of the configured kind are committed.

Examples:
  txsignal count
  txsignal count --kind AuditLog --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			if kind == "" {
				kind = a.reader.Kind()
			}
			n, err := a.store.CountRecords(cmd.Context(), kind)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to count records", err)
			}

			if rootOpts.Format == "json" {
				f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
				return f.Success(CountResult{Kind: kind, Count: n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "entity kind (default from config)")
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List committed records in seq order",
		Long: `List committed records of the configured kind, oldest first.

Examples:
  txsignal list
  txsignal list --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			if kind == "" {
				kind = a.reader.Kind()
			}
			list, err := a.store.ListRecords(cmd.Context(), kind)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list records", err)
			}

			if rootOpts.Format == "json" {
				f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
				return f.Success(list)
			}
			writeRecords(cmd, list)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "entity kind (default from config)")
	return cmd
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one committed record",
		Long: `Show one committed record by its permanent ID.

Exit codes:
  0 - Record found
  1 - No committed record has that ID
  2 - Command error

Examples:
  txsignal show 0190c6f2-7d2a-7c3e-9f00-3b1a2c4d5e6f
  txsignal show 0190c6f2-7d2a-7c3e-9f00-3b1a2c4d5e6f --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			rec, err := a.store.ReadRecord(cmd.Context(), args[0])
			if errors.Is(err, sql.ErrNoRows) {
				return NewExitError(ExitFailure, fmt.Sprintf("record not found: %s", args[0]))
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read record", err)
			}

			if rootOpts.Format == "json" {
				f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
				return f.Success(rec)
			}
			writeRecords(cmd, []record.Record{rec})
			return nil
		},
	}
	return cmd
}

func writeRecords(cmd *cobra.Command, list []record.Record) {
	w := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(w, "No records.")
		return
	}
	for _, r := range list {
		fmt.Fprintf(w, "%6d  %s  %s  %q\n", r.Seq, r.ID, r.CommittedAt.Format(time.RFC3339), r.Name)
	}
}
