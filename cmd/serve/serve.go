// Package serve implements the command that runs the admin HTTP API.
package serve

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/common"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/config"
)

// Command returns the serve command.
func Command() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics and the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.RunWithApp(cmd.Context(), func(cfg *config.Config) {
				if port > 0 {
					cfg.Server.Port = port
				}
			}, func(ctx context.Context, app *bootstrap.App) error {
				return app.NewServer().Run(ctx)
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	return cmd
}
