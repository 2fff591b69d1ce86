package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/shekshuev/athena-backend/internal/account"
	accountrepo "github.com/shekshuev/athena-backend/internal/account/repo"
	"github.com/shekshuev/athena-backend/internal/auth"
	"github.com/shekshuev/athena-backend/internal/profile"
	profilerepo "github.com/shekshuev/athena-backend/internal/profile/repo"
	"github.com/shekshuev/athena-backend/internal/router"
	"github.com/shekshuev/athena-backend/pkg/security"
)

var autoMigrate bool

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "ensure the schema before serving")
	return cmd
}

func httpAddr() string {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		return v
	}
	return "0.0.0.0:8431"
}

func runServe(cmd *cobra.Command, _ []string) error {
	lg, db, err := bootstrap()
	if err != nil {
		return oops.Code("BOOTSTRAP_FAILED").Wrap(err)
	}
	defer lg.Sync()
	defer db.Close()

	sugar := lg.Sugar()
	sugar.Info("starting athena")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if autoMigrate {
		if err := ensureSchema(ctx, db, sugar); err != nil {
			return err
		}
	}
	accounts := accountrepo.NewAccountRepo(db, sugar)

	authCfg := auth.ConfigFromEnv()
	tokens, err := auth.NewTokenIssuer(authCfg.Algorithm, nil, sugar)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	hasher := security.HasherFromEnv()
	authSvc, err := auth.NewService(authCfg, accounts, hasher, tokens, sugar)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	accountSvc := account.NewService(accounts, hasher, sugar)
	profileSvc := profile.NewService(profilerepo.NewProfileRepo(db, sugar), accountSvc, sugar)

	handler := router.RegisterRoutes(router.Deps{
		Logger:   sugar,
		Auth:     auth.NewHandler(authSvc, sugar),
		Accounts: account.NewHandler(accountSvc, sugar),
		Profiles: profile.NewHandler(profileSvc, accountSvc, sugar),
		Authn:    authSvc,
		Ready:    db.PingContext,
	})
	srv := &http.Server{
		Addr:              httpAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return oops.Code("HTTP_SERVER_FAILED").Wrap(err)
		}
	}

	sugar.Info("shutting down")
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnw("http server shutdown failed", "err", err)
	}
	sugar.Info("goodbye")
	return nil
}
