package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/subscription-api/migrations"
	"github.com/dmitrymomot/subscription-api/pkg/config"
	"github.com/dmitrymomot/subscription-api/pkg/pg"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the Postgres schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(pg.Up), string(pg.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dir := pg.Up
			if len(args) == 1 {
				dir = pg.Direction(args[0])
			}

			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}
			var pcfg pg.Config
			if err := config.Load(&pcfg); err != nil {
				return err
			}

			pool, err := pg.Connect(ctx, pcfg)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			return pg.Migrate(ctx, pool, migrations.FS, pcfg.MigrationsTable, dir, newLogger(cfg))
		},
	}
}
