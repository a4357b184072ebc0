package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/chequeflow/internal/cli"
	"github.com/aretw0/chequeflow/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chequeflow",
	Short: "chequeflow drives bank instrument workflows",
	Long: `chequeflow is a workflow engine for bank instrument requests.
It walks a session through the start, sheets, inquiry and delivery screens,
rolling server-side transactions back when the user navigates back.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			loaded.Log.Level = "debug"
		}
		l, err := cli.NewLogger(os.Stderr, loaded.Log)
		if err != nil {
			return err
		}
		cfg, logger = loaded, l
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./chequeflow.yaml or ~/.config/chequeflow/config.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}
