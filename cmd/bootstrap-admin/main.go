// Package main provides the privileged BroDesk administration tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brodesk/brodesk/cmd/bootstrap-admin/commands"
	"github.com/brodesk/brodesk/internal/app"
)

func main() {
	cfg, err := app.LoadToolConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	rootCmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "BroDesk administration tool",
		Long: `BroDesk administration tool

Provisions the initial approved admin account and applies schema migrations.
Accounts with the admin role can only be created through this tool.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(commands.AdminCommand(cfg, logger))
	rootCmd.AddCommand(commands.MigrateCommand(cfg, logger))
	rootCmd.AddCommand(commands.PendingCommand(cfg, logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
