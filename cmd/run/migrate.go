package main

import (
	"github.com/spf13/cobra"
	"github.com/thep200/repo-harvester/internal/model"
	"github.com/thep200/repo-harvester/pkg/db"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the repositories table and its unique key",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, config, err := loadConfig(nil, false)
			if err != nil {
				return err
			}
			logger, err := newLogger(config)
			if err != nil {
				return withCode(exitConfig, "%w", err)
			}

			database := db.NewDatabase(config.Database)
			defer database.Close()
			if err := database.Ping(ctx); err != nil {
				return withCode(exitDatabase, "database unreachable: %w", err)
			}

			repo, err := model.NewRepository(config, logger, database)
			if err != nil {
				return withCode(exitDatabase, "%w", err)
			}
			if err := repo.EnsureSchema(ctx); err != nil {
				return withCode(exitDatabase, "%w", err)
			}
			logger.Info(ctx, "Schema is up to date")
			return nil
		},
	}
}
