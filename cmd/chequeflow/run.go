package main

import (
	"context"
	"os"

	"github.com/aretw0/chequeflow/internal/cli"
	"github.com/aretw0/chequeflow/pkg/runner"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an interactive workflow session",
	Long: `Starts one session against the configured scenario and drives it from the
terminal. With --json, views and prompts are written as NDJSON and commands are
read one per line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonMode, _ := cmd.Flags().GetBool("json")
		sessionID, _ := cmd.Flags().GetString("session")
		style, _ := cmd.Flags().GetString("style")
		if scenario, _ := cmd.Flags().GetString("scenario"); scenario != "" {
			cfg.Scenario.Path = scenario
			cfg.Process.Commands = ""
		}

		ctx := context.Background()
		stack, err := cli.NewStack(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer stack.Close(ctx)

		return cli.RunSession(ctx, stack, cli.RunOptions{
			SessionID: sessionID,
			JSON:      jsonMode,
			Pretty:    !jsonMode && runner.IsTerminal(os.Stdin) && runner.IsTerminal(os.Stdout),
			Style:     style,
		}, logger)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")
	runCmd.Flags().StringP("scenario", "s", "", "Scripted scenario file (overrides scenario.path)")
	runCmd.Flags().String("session", "", "Session id (generated when omitted)")
	runCmd.Flags().String("style", "", "Glamour style for rendered views (default: from terminal)")

	// 'run' is the default if no command is provided.
	rootCmd.RunE = runCmd.RunE
	rootCmd.Flags().AddFlagSet(runCmd.Flags())
}
