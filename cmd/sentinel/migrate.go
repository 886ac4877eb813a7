package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arcwatch/sentinel/internal/clock"
	"github.com/arcwatch/sentinel/internal/config"
	"github.com/arcwatch/sentinel/internal/healing"
	"github.com/arcwatch/sentinel/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogger(cfg)

		s, err := store.Open(cmd.Context(), cfg.DBPath)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := healing.SeedRunbooks(cmd.Context(), s, clock.New()); err != nil {
			return err
		}

		log.Info().Str("db_path", cfg.DBPath).Msg("migrate: schema applied")
		return nil
	},
}
