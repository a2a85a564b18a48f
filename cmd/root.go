// Package cmd implements the command-line interface of the watchlist
// ingestor.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/common"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/migrate"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/queues"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/run"
	cmdscheduler "github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/scheduler"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/serve"
	cmdsources "github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/sources"
	cmdworker "github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/worker"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ingestor",
		Short: "Sanctions and fraud-news watchlist ingestor",
		Long: `Fetches sanctions lists and fraud-news feeds on a schedule, normalizes
them and stores the results for matching.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.String(common.KeyConfig, "", "config file (default $CONFIG_PATH or ./config.yml)")
	flags.Bool(common.KeyDebug, false, "enable debug logging and gin debug mode")

	root.PersistentPreRunE = func(*cobra.Command, []string) error {
		if err := viper.BindPFlag(common.KeyConfig, flags.Lookup(common.KeyConfig)); err != nil {
			return fmt.Errorf("bind --config: %w", err)
		}
		if err := viper.BindPFlag(common.KeyDebug, flags.Lookup(common.KeyDebug)); err != nil {
			return fmt.Errorf("bind --debug: %w", err)
		}
		return viper.BindEnv(common.KeyLogLevel, "LOG_LEVEL")
	}

	root.AddCommand(
		cmdworker.Command(),
		cmdscheduler.Command(),
		serve.Command(),
		run.Command(),
		cmdsources.Command(),
		queues.Command(),
		migrate.Command(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "ingestor %s\n", Version)
			},
		},
	)
	return root
}

// Execute runs the CLI until it finishes or the process is signalled.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand().ExecuteContext(ctx)
}
