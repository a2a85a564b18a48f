// Package worker implements the command that processes queued jobs.
package worker

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/common"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
)

// Command returns the worker command.
func Command() *cobra.Command {
	var (
		queueNames []string
		withHTTP   bool
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process jobs from the crawl, sanctions and enrichment queues",
		Long: `Start one worker pool per queue. Concurrency, attempts and timeouts come
from the queues section of the configuration. Running jobs are drained on
SIGINT or SIGTERM; interrupted jobs go back to the queue.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := ParseQueues(queueNames)
			if err != nil {
				return err
			}
			return common.RunWithApp(cmd.Context(), nil, func(ctx context.Context, app *bootstrap.App) error {
				if !withHTTP {
					return app.RunWorkers(ctx, names)
				}
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error { return app.RunWorkers(gctx, names) })
				g.Go(func() error { return app.NewServer().Run(gctx) })
				return g.Wait()
			})
		},
	}

	cmd.Flags().StringSliceVarP(&queueNames, "queue", "q", nil, "queues to consume (default all)")
	cmd.Flags().BoolVar(&withHTTP, "http", false, "also serve the admin HTTP API")
	return cmd
}

// ParseQueues validates queue names given on the command line.
func ParseQueues(raw []string) ([]queue.Name, error) {
	names := make([]queue.Name, 0, len(raw))
	seen := make(map[queue.Name]bool, len(raw))
	for _, s := range raw {
		name, err := queue.ParseName(s)
		if err != nil {
			return nil, fmt.Errorf("--queue: %w", err)
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}
