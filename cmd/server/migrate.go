package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/phrazzld/inkwell-api/internal/platform/postgres"
	"github.com/spf13/cobra"
)

// migrateCommands are the goose commands exposed by "inkwell migrate".
var migrateCommands = []string{"up", "down", "status", "version", "reset"}

// errMigrateMemory is returned when migrations are requested for the
// in-memory backend, which has no schema.
var errMigrateMemory = errors.New("migrations require database.backend=postgres")

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down|status|version|reset>",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: migrateCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.Backend != "postgres" {
				return errMigrateMemory
			}
			log, err := logger.Setup(cfg.Server)
			if err != nil {
				return fmt.Errorf("failed to set up logger: %w", err)
			}

			ctx := runContext(cmd)
			db, err := postgres.Open(ctx, cfg.Database, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					log.Error("failed to close database", slog.String("error", err.Error()))
				}
			}()

			return postgres.Migrate(ctx, db, log, args[0])
		},
	}
}
