// Package migrate implements the schema migration command.
package migrate

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres:// driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // file:// source
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/cmd/common"
)

const defaultMigrationsPath = "file://migrations"

// Directions accepted by the command.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Migrator is the subset of *migrate.Migrate the command drives.
type Migrator interface {
	Up() error
	Down() error
}

// Command returns the migrate command.
func Command() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{DirectionUp, DirectionDown},
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}

			m, err := migrate.New(source, deps.Config.Database.URL())
			if err != nil {
				return fmt.Errorf("create migrate instance: %w", err)
			}
			defer func() { _, _ = m.Close() }()

			return Run(cmd.OutOrStdout(), m, args[0])
		},
	}

	cmd.Flags().StringVar(&source, "source", defaultMigrationsPath, "migrations source URL")
	return cmd
}

// Run migrates in direction and reports the outcome to w.
func Run(w io.Writer, m Migrator, direction string) error {
	var err error
	switch direction {
	case DirectionUp:
		err = m.Up()
	case DirectionDown:
		err = m.Down()
	default:
		return fmt.Errorf("invalid direction %q (must be %q or %q)", direction, DirectionUp, DirectionDown)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		_, _ = fmt.Fprintln(w, "No migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", direction, err)
	}

	_, _ = fmt.Fprintf(w, "Migration %s completed successfully\n", direction)
	return nil
}
