// Command txsignal creates records inside transaction scopes and notifies
// listeners synchronously before the scope commits.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/txsignal/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
