// Package cmd wires the autopilot subsystems behind a cobra CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for autopilot
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autopilot",
		Short: "Autonomous goal-pursuit engine",
		Long: `Autopilot decomposes a high-level goal into a dependency-ordered
task plan, executes the tasks with bounded concurrency and retries,
scores every outcome, and adaptively replans failures.

Configuration is loaded from .autopilot/config.yaml if present.
CLI flags override configuration file settings.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .autopilot/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")

	// Add subcommands
	cmd.AddCommand(NewPursueCommand())
	cmd.AddCommand(NewPlanCommand())
	cmd.AddCommand(NewStatusCommand())

	return cmd
}
