package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	paramsPath string
	factsPath  string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "converge",
		Short: "OpenConverge - Declarative Single-Host Convergence Engine",
		Long: `OpenConverge compiles a declared agent configuration into a resource
catalog, resolves it into a dependency-ordered plan, and converges the host
toward the desired state through idempotent providers.

Features:
  - Catalog compilation from parameters and host facts
  - Topological ordering with stable declaration-order tie-break
  - Refresh notifications with at-most-once delivery per run
  - Partial-failure runs: unrelated resources still converge
  - Deterministic per-host cron jitter
  - Run history persisted to SQLite`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&paramsPath, "params", "p", "params.yaml", "parameter file path")
	rootCmd.PersistentFlags().StringVarP(&factsPath, "facts", "f", "facts.yaml", "fact file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newCompileCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
