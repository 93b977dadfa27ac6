package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/subscription-api/pkg/config"
	"github.com/dmitrymomot/subscription-api/pkg/httpserver"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}
			var srvCfg httpserver.Config
			if err := config.Load(&srvCfg); err != nil {
				return err
			}

			log := newLogger(cfg)
			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}

			srv := httpserver.New(srvCfg,
				httpserver.WithLogger(log),
				httpserver.WithStopHook(a.close),
			)
			return srv.Run(ctx, a.handler)
		},
	}
}
