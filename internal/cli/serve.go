package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openstats-labs/statcube/internal/config"
	"github.com/openstats-labs/statcube/internal/server"
)

func newServeCommand(cfgFn func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the build and preview API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := cfgFn()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			srv := server.New(server.Config{
				Addr:    cfg.Server.Addr(),
				Builder: app.builder,
				Preview: app.preview,
				Catalog: app.catalog,
				Logger:  app.logger,
			})
			return srv.Serve(ctx)
		},
	}
}
