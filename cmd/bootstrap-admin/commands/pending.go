package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brodesk/brodesk/internal/accounts"
	"github.com/brodesk/brodesk/internal/app"
)

// PendingCommand returns the command listing accounts awaiting approval.
func PendingCommand(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List accounts awaiting approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd.Context(), cfg, logger, func(svc *accounts.Service) error {
				return listPending(cmd.Context(), cmd.OutOrStdout(), svc)
			})
		},
	}
}

// AccountLister lists accounts by approval status.
type AccountLister interface {
	ListAccounts(ctx context.Context, status accounts.ApprovalStatus) ([]accounts.Account, error)
}

func listPending(ctx context.Context, out io.Writer, svc AccountLister) error {
	pending, err := svc.ListAccounts(ctx, accounts.StatusPending)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "no accounts awaiting approval")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tROLE\tEMAIL\tNAME\tREGISTERED")
	for _, acct := range pending {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", acct.ID, acct.Role, acct.Email, acct.FullName, acct.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
