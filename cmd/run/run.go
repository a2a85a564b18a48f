// Package run implements the command that runs one source on demand.
package run

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/common"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/scheduler"
)

// Command returns the run command.
func Command() *cobra.Command {
	var inline bool

	cmd := &cobra.Command{
		Use:   "run <source-id>",
		Short: "Run one source now",
		Long: `Enqueue a one-shot job for the source. With --inline the job runs in
this process instead, using an in-memory rate limit, and its summary is
printed when it finishes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceID := args[0]
			out := cmd.OutOrStdout()

			var configure func(*config.Config)
			if inline {
				configure = func(cfg *config.Config) { cfg.RateLimit.Store = config.RateLimitStoreMemory }
			}

			return common.RunWithApp(cmd.Context(), configure, func(ctx context.Context, app *bootstrap.App) error {
				if inline {
					result, err := app.RunInline(ctx, sourceID)
					if err != nil {
						return fmt.Errorf("run %s: %w", sourceID, err)
					}
					return PrintJSON(out, result)
				}

				src, err := app.Sources.Get(sourceID)
				if err != nil {
					return err
				}
				job, err := scheduler.Enqueue(ctx, app.Queue, src, "")
				if err != nil {
					return fmt.Errorf("enqueue %s: %w", sourceID, err)
				}
				_, err = fmt.Fprintf(out, "enqueued job %s on queue %s\n", job.ID, job.Queue)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&inline, "inline", false, "run in this process instead of enqueueing")
	return cmd
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
