package commands

import (
	"net/http"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openconverge/openconverge/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var (
		parallelism int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run convergence when the parameter file changes",
		Long: `Watch the parameter and fact files and run a convergence pass on every
change. An initial pass runs immediately. Providers keep their state between
passes, so an unchanged configuration converges to an all-unchanged run.

With --metrics-addr, run metrics are exposed on a Prometheus endpoint.`,
		Example: `  # Watch with metrics
  converge watch --params params.yaml --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			metrics, err := telemetry.NewMetrics(telemetry.DefaultConfig().Metrics)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				server := &http.Server{
					Addr:              metricsAddr,
					Handler:           mux,
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Error().Err(err).Msg("Metrics server failed")
					}
				}()
				defer server.Close()
				log.Info().Str("addr", metricsAddr).Msg("Serving metrics")
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			for _, path := range []string{paramsPath, factsPath} {
				if err := watcher.Add(path); err != nil {
					return err
				}
			}

			// Providers persist across passes so repeated runs demonstrate
			// convergence rather than re-applying everything.
			registry := newRegistry()

			runOnce := func() {
				report := runConvergence(ctx, registry, metrics, nil, parallelism)
				if err := printReport(report); err != nil {
					log.Error().Err(err).Msg("Failed to render report")
				}
			}

			runOnce()

			// Editors fire bursts of events per save; debounce them into one run.
			var debounce *time.Timer
			debounceDelay := 500 * time.Millisecond

			for {
				select {
				case <-ctx.Done():
					return nil

				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						log.Debug().Str("file", event.Name).Str("op", event.Op.String()).
							Msg("Input file changed")
						if debounce != nil {
							debounce.Stop()
						}
						debounce = time.AfterFunc(debounceDelay, runOnce)
					}

				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Error().Err(err).Msg("Watcher error")
				}
			}
		},
	}

	cmd.Flags().IntVar(&parallelism, "parallelism", 1, "max resources applied concurrently within a batch")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on")

	return cmd
}
