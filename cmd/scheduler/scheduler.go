// Package scheduler implements the command that fires recurring source jobs.
package scheduler

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/common"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/bootstrap"
)

// Command returns the scheduler command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Enqueue source jobs on their schedules",
		Long: `Register one recurring job per enabled source. Several scheduler
processes may run; only the elected leader enqueues.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.RunWithApp(cmd.Context(), nil, func(ctx context.Context, app *bootstrap.App) error {
				return app.RunScheduler(ctx)
			})
		},
	}
}
