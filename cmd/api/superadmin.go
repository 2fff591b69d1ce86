package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/shekshuev/athena-backend/internal/account"
	"github.com/shekshuev/athena-backend/internal/account/entity"
	accountrepo "github.com/shekshuev/athena-backend/internal/account/repo"
	"github.com/shekshuev/athena-backend/pkg/security"
)

var revokeSuperadmin bool

// NewGrantSuperadminCmd creates the grant-superadmin subcommand. It is the
// only way to create the first superadmin.
func NewGrantSuperadminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant-superadmin EMAIL",
		Short: "Grant or revoke superadmin rights on an account",
		Args:  cobra.ExactArgs(1),
		RunE:  runGrantSuperadmin,
	}
	cmd.Flags().BoolVar(&revokeSuperadmin, "revoke", false, "remove superadmin rights instead")
	return cmd
}

func runGrantSuperadmin(cmd *cobra.Command, args []string) error {
	lg, db, err := bootstrap()
	if err != nil {
		return oops.Code("BOOTSTRAP_FAILED").Wrap(err)
	}
	defer lg.Sync()
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	svc := account.NewService(accountrepo.NewAccountRepo(db, lg.Sugar()), security.HasherFromEnv(), lg.Sugar())
	a, err := setSuperadmin(ctx, svc, args[0], !revokeSuperadmin)
	if err != nil {
		return err
	}
	cmd.Printf("%s superadmin=%t\n", a.Email, a.IsSuperadmin)
	return nil
}

func setSuperadmin(ctx context.Context, svc *account.Service, email string, grant bool) (*entity.Account, error) {
	a, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("email", email).Wrap(err)
	}
	a, err = svc.Update(ctx, a.ID, entity.Patch{IsSuperadmin: &grant})
	if err != nil {
		return nil, oops.Code("ACCOUNT_UPDATE_FAILED").With("email", email).Wrap(err)
	}
	return a, nil
}
