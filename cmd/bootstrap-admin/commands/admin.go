package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/brodesk/brodesk/internal/accounts"
	"github.com/brodesk/brodesk/internal/app"
	"github.com/brodesk/brodesk/internal/identity"
	"github.com/brodesk/brodesk/internal/platform/db"
)

// AdminCommand returns the command creating the approved admin account.
func AdminCommand(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	seed := accounts.AdminSeed{
		Email:    cfg.BootstrapAdminEmail,
		Password: cfg.BootstrapAdminPassword,
		FullName: cfg.BootstrapAdminName,
		Phone:    cfg.BootstrapAdminPhone,
	}
	var migrate bool

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Create the approved admin account",
		Long: `Create the approved admin account. Flags default to the
BOOTSTRAP_ADMIN_* environment variables. Running it again for an existing
admin email is a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if migrate {
				if err := app.Migrate(cfg.PGDSN, logger); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}
			return withService(cmd.Context(), cfg, logger, func(svc *accounts.Service) error {
				return runBootstrap(cmd.Context(), cmd.OutOrStdout(), svc, seed)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&seed.Email, "email", seed.Email, "admin email address")
	flags.StringVar(&seed.Password, "password", seed.Password, "admin password (at least 6 characters)")
	flags.StringVar(&seed.FullName, "name", seed.FullName, "admin full name")
	flags.StringVar(&seed.Phone, "phone", seed.Phone, "admin phone number")
	flags.BoolVar(&migrate, "migrate", false, "apply migrations before creating the account")
	return cmd
}

// Bootstrapper provisions the admin account.
type Bootstrapper interface {
	BootstrapAdmin(ctx context.Context, seed accounts.AdminSeed) (accounts.Account, bool, error)
}

func runBootstrap(ctx context.Context, out io.Writer, svc Bootstrapper, seed accounts.AdminSeed) error {
	acct, created, err := svc.BootstrapAdmin(ctx, seed)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "created admin %s (%s)\n", acct.Email, acct.ID)
		return nil
	}
	fmt.Fprintf(out, "admin %s already exists (%s)\n", acct.Email, acct.ID)
	return nil
}

func withService(ctx context.Context, cfg *app.Config, logger *slog.Logger, fn func(*accounts.Service) error) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2, MaxConnLifetime: time.Minute})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	return fn(newService(pool, cfg, logger))
}

func newService(pool *pgxpool.Pool, cfg *app.Config, logger *slog.Logger) *accounts.Service {
	return accounts.NewService(accounts.Deps{
		Repo:     accounts.NewRepository(pool),
		Identity: identity.NewService(identity.NewRepository(pool), logger, cfg.SessionTTL),
		Logger:   logger,
	})
}
