package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/app"
	srv "github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/server"
)

func serveCMD(env *cliEnv) *cobra.Command {
	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serveAddr != "" {
				env.cfg.Server.Address = serveAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, env.cfg, env.logger, true)
			if err != nil {
				return err
			}
			defer a.Close()
			if !env.cfg.HasAPIKey() {
				env.logger.Warn("upstream api key is not set; uploads and analyses will be refused")
			}
			return srv.Run(ctx, a)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	return serve
}

