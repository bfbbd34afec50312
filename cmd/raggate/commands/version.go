package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jjellis/raggate/internal/version"
)

// NewVersionCmd constructs the `raggate version` subcommand.
// It prints the binary version and git commit injected at build time
// via -ldflags. Falls back to "dev"/"unknown" for local builds.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the raggate version and git commit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("raggate %s (commit: %s)\n", version.Version, version.Commit)
		},
	}
}
