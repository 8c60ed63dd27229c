package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:          "stepflow",
		Short:        "Per-project workflow engine driving an external AI agent",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configDir)
		},
	}
	root.PersistentFlags().StringVar(&configDir, "config", "", "directory holding config.yaml")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, the notifier pool and the stale-step reaper",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configDir)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(configDir)
			},
		},
		newSeedCmd(&configDir),
		newTailCmd(&configDir),
	)
	return root
}

func newSeedCmd(configDir *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Define the catalog steps listed in a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), *configDir, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed file (defaults to catalog.seed_file)")
	return cmd
}

func newTailCmd(configDir *string) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print step completion events or queued activations from Redis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTail(cmd.Context(), *configDir, source, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&source, "source", "events", "events or activations")
	return cmd
}
