package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shekshuev/athena-backend/pkg/database"
	"github.com/shekshuev/athena-backend/pkg/utilities"
)

// Global flags available to all subcommands.
var envFile string

// NewRootCmd creates the root command for the athena CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "athena",
		Short: "athena - LMS account and authentication service",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnv(envFile)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewGrantSuperadminCmd())

	return cmd
}

// loadEnv loads an explicit env file, or .env on a best-effort basis.
func loadEnv(path string) error {
	if path == "" {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// bootstrap builds the logger and database pool shared by subcommands.
func bootstrap() (*zap.Logger, *sqlx.DB, error) {
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		_ = lg.Sync()
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	return lg, db, nil
}
