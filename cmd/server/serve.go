package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/sakif/study-tracker/internal/config"
	"github.com/sakif/study-tracker/internal/mail"
	"github.com/sakif/study-tracker/internal/server"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Open the database (applying pending migrations), start the mail
dispatcher, and serve HTTP until SIGINT or SIGTERM.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := server.OpenStore(ctx, cfg, logger)
	if err != nil {
		return oops.Code("DB_OPEN_FAILED").With("driver", cfg.DB.Driver).Wrap(err)
	}

	srv, err := server.New(cfg, store, mail.NewClient(cfg.Mail.URL, cfg.Mail.Timeout), logger)
	if err != nil {
		_ = store.Close()
		return oops.Code("SERVER_INIT_FAILED").Wrap(err)
	}

	if err := srv.Start(ctx); err != nil {
		return oops.Code("SERVER_FAILED").Wrap(err)
	}
	return nil
}

// commandContext returns cmd's context, or Background when run outside
// Execute (as tests do).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
