package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/sakif/study-tracker/internal/config"
	"github.com/sakif/study-tracker/internal/repository/postgres"
	sqliteRepo "github.com/sakif/study-tracker/internal/repository/sqlite"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply every pending migration to the configured database and print the
resulting schema version. Only the db.* settings are required.`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Read(cmd.Flags())
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := cfg.ValidateDB(); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	cmd.Printf("Running %s migrations...\n", cfg.DB.Driver)

	var version uint
	switch cfg.DB.Driver {
	case "postgres":
		version, err = postgres.Migrate(cfg.DB.URL)
		if err != nil {
			return oops.Code("MIGRATION_FAILED").With("driver", "postgres").Wrap(err)
		}
	default:
		if err := cfg.EnsureDataDir(); err != nil {
			return oops.Code("MIGRATION_FAILED").Wrap(err)
		}
		db, err := sqliteRepo.New(cfg.DB.Path)
		if err != nil {
			return oops.Code("MIGRATION_FAILED").With("driver", "sqlite").Wrap(err)
		}
		defer db.Close()

		version, err = db.SchemaVersion(commandContext(cmd))
		if err != nil {
			return oops.Code("MIGRATION_FAILED").With("driver", "sqlite").Wrap(err)
		}
	}

	cmd.Printf("Schema at version %d\n", version)
	return nil
}
