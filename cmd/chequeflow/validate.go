package main

import (
	"fmt"

	"github.com/aretw0/chequeflow"
	"github.com/aretw0/chequeflow/internal/validator"
	"github.com/aretw0/chequeflow/pkg/adapters/scripted"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [scenario.yaml]",
	Short: "Check the transition table and a scenario for consistency",
	Long: `Crawls the transition table from the start screen and reports unreachable
screens. When a scenario file is given (or configured), every scripted result is
decoded and routed through the table.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validator.ValidateTable(chequeflow.Transitions()); err != nil {
			return fmt.Errorf("transition table: %w", err)
		}

		path := cfg.Scenario.Path
		if len(args) > 0 {
			path = args[0]
		}
		if path != "" {
			sc, err := scripted.ReadScenario(path)
			if err != nil {
				return err
			}
			if err := validator.ValidateScenario(sc); err != nil {
				return fmt.Errorf("scenario %s: %w", path, err)
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Workflow is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
