package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/chequeflow"
	"github.com/aretw0/chequeflow/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the workflow graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of the forward transition table,
with a dotted rollback edge for every push. Use --json for the raw table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(chequeflow.Transitions())
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(chequeflow.Transitions(), nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("json", false, "Print the transition table as JSON")
}
