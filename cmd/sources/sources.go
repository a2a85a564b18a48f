// Package sources implements the command that lists the configured sources.
package sources

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/scheduler"
	internalsources "github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/sources"
)

// Output formats.
const (
	FormatTable = "table"
	FormatYAML  = "yaml"
	FormatJSON  = "json"
)

// Command returns the sources command.
func Command() *cobra.Command {
	var (
		format      string
		enabledOnly bool
	)

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the compiled-in sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := internalsources.Default()
			srcs := reg.All()
			if enabledOnly {
				srcs = reg.Enabled()
			}
			return Render(cmd.OutOrStdout(), srcs, format)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", FormatTable, "output format: table, yaml or json")
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "only list enabled sources")
	return cmd
}

// Render writes srcs to w in the given format.
func Render(w io.Writer, srcs []domain.ConnectorConfig, format string) error {
	switch format {
	case FormatTable, "":
		RenderTable(w, srcs)
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(srcs); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(srcs)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// RenderTable formats srcs as a table.
func RenderTable(w io.Writer, srcs []domain.ConnectorConfig) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Type", "Queue", "Frequency", "Schedule", "Priority", "Rate Limit", "Language", "Enabled"})

	for _, src := range srcs {
		expr, err := scheduler.CronExpression(src.Frequency)
		if err != nil {
			expr = "-"
		}
		t.AppendRow(table.Row{
			src.ID,
			src.Type,
			scheduler.QueueFor(src),
			src.Frequency,
			expr,
			src.Priority,
			src.RateLimit,
			src.Language,
			strconv.FormatBool(src.Enabled),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "Total", len(srcs)})
	t.Render()
}
