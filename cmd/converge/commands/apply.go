package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openconverge/openconverge/pkg/stores"
	"github.com/openconverge/openconverge/pkg/telemetry"
)

func newApplyCommand() *cobra.Command {
	var (
		parallelism int
		historyPath string
		traceRun    bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Run one convergence pass",
		Long: `Compile the catalog, resolve the plan and converge the host.

This command:
  - Compiles the parameter set and facts into a resource catalog
  - Resolves requires edges into ordered apply batches
  - Applies each resource through its provider, skipping satisfied ones
  - Delivers refresh notifications to changed resources' subscribers
  - Optionally persists the run report to the history database`,
		Example: `  # One convergence run
  converge apply --params params.yaml --facts facts.yaml

  # Bounded parallelism within a batch
  converge apply --parallelism 4

  # Persist the run report
  converge apply --history runs.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var tracer *telemetry.Tracer
			if traceRun {
				cfg := telemetry.DefaultConfig()
				cfg.Tracing.Enabled = true
				var err error
				tracer, err = telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
				if err != nil {
					return err
				}
				defer func() {
					if err := tracer.Shutdown(cmd.Context()); err != nil {
						log.Error().Err(err).Msg("Failed to flush traces")
					}
				}()
			}

			report := runConvergence(cmd.Context(), newRegistry(), nil, tracer, parallelism)

			if historyPath != "" {
				store, err := stores.NewSQLiteStore(stores.Config{Path: historyPath})
				if err != nil {
					return err
				}
				if err := store.Init(cmd.Context()); err != nil {
					return err
				}
				defer store.Close()
				if err := store.Migrate(cmd.Context()); err != nil {
					return err
				}
				if err := store.SaveReport(cmd.Context(), report); err != nil {
					log.Error().Err(err).Msg("Failed to persist run report")
				}
			}

			if err := printReport(report); err != nil {
				return err
			}
			if report.Failed() {
				return fmt.Errorf("run %s ended %s", report.ID, report.Status)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&parallelism, "parallelism", 1, "max resources applied concurrently within a batch")
	cmd.Flags().StringVar(&historyPath, "history", "", "SQLite database path for run history")
	cmd.Flags().BoolVar(&traceRun, "trace", false, "emit run traces to stdout")

	return cmd
}
