package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openconverge/openconverge/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var historyPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect persisted run reports",
	}
	cmd.PersistentFlags().StringVar(&historyPath, "history", "runs.db", "SQLite database path for run history")

	openStore := func(cmd *cobra.Command) (*stores.SQLiteStore, error) {
		store, err := stores.NewSQLiteStore(stores.Config{Path: historyPath})
		if err != nil {
			return nil, err
		}
		if err := store.Init(cmd.Context()); err != nil {
			return nil, err
		}
		if err := store.Migrate(cmd.Context()); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	}

	var (
		limit  int
		offset int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted runs, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			for _, run := range runs {
				fmt.Printf("%s  %-16s  %s  (%d changed, %d failed, %d skipped)\n",
					run.ID, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"),
					run.Changed, run.Failed, run.Skipped)
			}
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	listCmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one persisted run report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.GetReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printReport(report)
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(showCmd)

	return cmd
}
