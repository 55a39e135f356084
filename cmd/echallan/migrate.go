package main

import (
	"github.com/irisdrone/echallan/internal/database"
	"github.com/spf13/cobra"
)

func migrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(a.cfg.Database, a.log)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.Migrate(db); err != nil {
				return err
			}
			a.log.Info("Database migrated")
			return nil
		},
	}
}
