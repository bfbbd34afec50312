// Command raggate is the entry point for the raggate retrieval
// pipeline. It provides a CLI (via Cobra) for building an index and
// querying it, plus an optional HTTP server mode.
package main

import (
	"fmt"
	"os"

	"github.com/jjellis/raggate/cmd/raggate/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
