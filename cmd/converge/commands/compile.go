package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newCompileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile and order the resource catalog",
		Long: `Compile the parameter set and host facts into a resource catalog and
resolve it into a dependency-ordered plan, without touching any host state.

This command:
  - Loads and validates the parameter file
  - Compiles the catalog, including fact-driven platform branches
  - Resolves requires edges into ordered apply batches
  - Prints the plan`,
		Example: `  # Compile with explicit inputs
  converge compile --params params.yaml --facts facts.yaml

  # Machine-readable plan
  converge compile --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, facts, err := loadInputs()
			if err != nil {
				return err
			}

			plan, err := resolvePlan(params, facts, log.Logger)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(plan.Batches)
			}

			fmt.Printf("Plan: %d resources in %d batches\n", plan.Len(), len(plan.Batches))
			for i, batch := range plan.Batches {
				fmt.Printf("Batch %d:\n", i+1)
				for _, res := range batch {
					fmt.Printf("  %s (ensure: %s)\n", res.Ref(), res.Ensure)
				}
			}
			return nil
		},
	}

	return cmd
}
