package main

import (
	"log"

	"github.com/sentencevault/sentence-service/internal/config"
	"github.com/sentencevault/sentence-service/internal/migrations"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		db, err := openDatabase(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := migrations.Up(cmd.Context(), db); err != nil {
			return err
		}
		log.Println("Migrations applied")
		return nil
	},
}
