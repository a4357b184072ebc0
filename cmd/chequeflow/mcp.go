package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/chequeflow/internal/cli"
	"github.com/aretw0/chequeflow/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the workflow engine as an MCP Server.
This allows AI agents to open sessions and drive them through tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stack, err := cli.NewStack(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := stack.Close(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Error releasing resources", "error", err)
			}
		}()

		srv := mcp.NewServer(stack.Sessions, logger)

		switch transport {
		case "stdio":
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			logger.Info("Starting chequeflow MCP Server (Stdio)", "scenario", stack.Scenario)
			if err := srv.ServeStdio(); err != nil {
				return fmt.Errorf("MCP server execution failed: %w", err)
			}
		case "sse":
			addr := fmt.Sprintf(":%d", port)
			logger.Info("Starting chequeflow MCP Server (SSE)", "port", port, "scenario", stack.Scenario)
			if err := srv.ServeSSE(ctx, addr, fmt.Sprintf("http://localhost:%d", port)); err != nil {
				// Ignore server closed error if it was caused by context cancellation
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("MCP server execution failed: %w", err)
				}
			}
			logger.Info("MCP Server stopped gracefully")
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8081, "Port to listen on (only for SSE)")
}
