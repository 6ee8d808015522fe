package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tkrause/paperclip/internal/config"
	"github.com/tkrause/paperclip/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := storage.NewSQLiteStorage(config.DatabasePath(viper.GetString("db.path")))
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			before, err := store.SchemaVersion(ctx)
			if err != nil {
				return err
			}

			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			after, err := store.SchemaVersion(ctx)
			if err != nil {
				return err
			}

			if after == before {
				fmt.Printf("Database schema is up to date (version %d).\n", after)
			} else {
				fmt.Printf("Applied migrations: schema version %d -> %d.\n", before, after)
			}
			return nil
		},
	}
}
