// Command kelsen deploys charters, applies governance calls and inspects
// the journal they leave behind.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/kelsen/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
