package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/study-tracker/internal/config"
	"github.com/sakif/study-tracker/internal/logging"
)

const serviceName = "study-tracker"

// NewRootCmd creates the root command. Running it without a subcommand
// starts the server, same as "serve".
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "study-tracker",
		Short: "Study tracker - accounts, assignments and lesson retention",
		Long: `study-tracker serves the study tracking web API: account registration
with email verification, cookie sessions, profiles, assignments, and lessons
with forgetting-curve retention estimates.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// newLogger builds the process logger from cfg. Validate has already
// checked the level, so the parse error is unreachable here.
func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := logging.ParseLevel(cfg.Log.Level)
	logger := logging.Setup(serviceName, version, cfg.Log.Format, level, os.Stdout)
	slog.SetDefault(logger)
	return logger
}
