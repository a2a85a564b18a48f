// Package queues implements the command that reports queue depths.
package queues

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/common"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
)

// Command returns the queues command. It only needs Redis.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "Show job counts per queue and state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}

			client, err := bootstrap.NewRedisClient(cmd.Context(), deps.Config.Redis)
			if err != nil {
				return err
			}
			defer client.Close()

			q := queue.NewFromConfig(client, deps.Config.Redis.KeyPrefix, deps.Config.Queues)
			return Show(cmd.Context(), cmd.OutOrStdout(), q)
		},
	}
}

// StatsSource reports queue stats. *queue.Queue implements it.
type StatsSource interface {
	AllStats(ctx context.Context) ([]queue.Stats, error)
}

// Show renders the stats of every queue.
func Show(ctx context.Context, w io.Writer, src StatsSource) error {
	stats, err := src.AllStats(ctx)
	if err != nil {
		return fmt.Errorf("read queue stats: %w", err)
	}
	RenderTable(w, stats)
	return nil
}

// RenderTable formats stats as a table.
func RenderTable(w io.Writer, stats []queue.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Queue", "Waiting", "Delayed", "Active", "Completed", "Failed"})

	var total queue.Stats
	for _, s := range stats {
		t.AppendRow(table.Row{s.Queue, s.Waiting, s.Delayed, s.Active, s.Completed, s.Failed})
		total.Waiting += s.Waiting
		total.Delayed += s.Delayed
		total.Active += s.Active
		total.Completed += s.Completed
		total.Failed += s.Failed
	}
	t.AppendFooter(table.Row{"Total", total.Waiting, total.Delayed, total.Active, total.Completed, total.Failed})
	t.Render()
}
