package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/brodesk/brodesk/internal/app"
)

// MigrateCommand returns the command applying pending schema migrations.
func MigrateCommand(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.Migrate(cfg.PGDSN, logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
