package main

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	accountrepo "github.com/shekshuev/athena-backend/internal/account/repo"
	profilerepo "github.com/shekshuev/athena-backend/internal/profile/repo"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the accounts and profiles schema",
		Long:  `Create the accounts and profiles tables and their indexes if they do not exist.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	lg, db, err := bootstrap()
	if err != nil {
		return oops.Code("BOOTSTRAP_FAILED").Wrap(err)
	}
	defer lg.Sync()
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	cmd.Println("Running migrations...")
	if err := ensureSchema(ctx, db, lg.Sugar()); err != nil {
		return err
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

// ensureSchema creates every table in dependency order.
func ensureSchema(ctx context.Context, db *sqlx.DB, logger *zap.SugaredLogger) error {
	if err := accountrepo.NewAccountRepo(db, logger).EnsureTable(ctx); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "ensure accounts table").Wrap(err)
	}
	if err := profilerepo.NewProfileRepo(db, logger).EnsureTable(ctx); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "ensure profiles table").Wrap(err)
	}
	return nil
}
