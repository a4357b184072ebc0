package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/chequeflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of chequeflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "chequeflow version %s\n", strings.TrimSpace(chequeflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
