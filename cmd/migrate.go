package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"posbridge/internal/catalog"
	"posbridge/internal/postgres"
	"posbridge/pkg/logger"
)

func migrateCmd() *cobra.Command {
	var seed string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres catalog table, optionally seeding it from a CSV or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pg, err := postgres.NewClient(cfg.Postgres)
			if err != nil {
				return fmt.Errorf("failed to connect to Postgres: %w", err)
			}
			defer pg.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			repo := postgres.NewCatalogRepo(pg)
			if err := repo.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to migrate catalog: %w", err)
			}
			logger.L().Info("✓ Catalog table ready")

			if seed == "" {
				return nil
			}
			rows, err := catalog.FileSource{Path: seed}.Load(ctx)
			if err != nil {
				return err
			}
			if err := repo.Replace(ctx, rows); err != nil {
				return fmt.Errorf("failed to seed catalog: %w", err)
			}
			logger.L().Infof("✓ Seeded %d catalog rows from %s", len(rows), seed)
			return nil
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "CSV or JSON mapping file to load into the table")
	return cmd
}
