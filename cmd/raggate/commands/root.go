// Package commands defines all Cobra CLI commands for the raggate binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jjellis/raggate/internal/audit"
	"github.com/jjellis/raggate/internal/config"
	"github.com/jjellis/raggate/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "raggate",
		Short: "raggate — local document retrieval with confidence gating",
		Long: `raggate indexes local documents (text, markdown, PDF, CSV) into a
vector index and answers retrieval queries against it, gating each
answer on how confident the evidence actually is.

Without an embedding API key (EMBEDDING_API_KEY or OPENAI_API_KEY)
raggate runs in deterministic dummy mode: useful for development,
meaningless for production ranking.

Configuration is read from env vars, optionally layered over a YAML
file (~/.raggate/config.yaml). See 'raggate --help' for commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A local .env fills missing env vars before config is resolved.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.raggate/config.yaml)")

	root.AddCommand(
		NewIndexCmd(),
		NewQueryCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
