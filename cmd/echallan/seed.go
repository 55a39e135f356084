package main

import (
	"github.com/irisdrone/echallan/internal/database"
	"github.com/irisdrone/echallan/internal/seed"
	"github.com/irisdrone/echallan/internal/store"
	"github.com/spf13/cobra"
)

func seedCommand(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load owners, vehicles, rules and operator accounts",
		Long:  "Upsert registry fixtures. Without --file the built-in demo fixtures are used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fixtures, err := seed.Default()
			if file != "" {
				fixtures, err = seed.LoadFile(file)
			}
			if err != nil {
				return err
			}

			db, err := database.Open(a.cfg.Database, a.log)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.Migrate(db); err != nil {
				return err
			}
			_, err = seed.Apply(cmd.Context(), store.New(db), fixtures, a.log)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fixtures YAML file")
	return cmd
}
