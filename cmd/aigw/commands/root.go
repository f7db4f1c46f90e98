// Package commands defines all Cobra CLI commands for the aigw binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/talentops/ai-gateway/internal/audit"
	"github.com/talentops/ai-gateway/internal/config"
	"github.com/talentops/ai-gateway/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "aigw",
		Short: "AI gateway for the Talent Ops platform",
		Long: `aigw is the retrieval-augmented AI gateway of the Talent Ops platform.

It indexes internal documents (policies, guides, compliance material) into a
Qdrant vector store and answers employee questions strictly from that indexed
content, scoped by the caller's role and the module the question came from.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.aigw/config.yaml).
See 'aigw --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Load .env if present. Real env vars are never overwritten.
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.aigw/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)

	return root
}
