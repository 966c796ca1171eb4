package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jamsession/api/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the Postgres schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		pg, err := store.OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		log.Info().Msg("schema is up to date")
		return nil
	},
}
