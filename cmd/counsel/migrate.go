package main

import (
	"github.com/spf13/cobra"

	"github.com/longregen/counsel/internal/adapters/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := initDB(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			return postgres.Migrate(pool)
		},
	}
}
