package common

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
)

// RunWithApp builds the full App, runs fn and releases the App afterwards.
// configure, when not nil, may adjust the loaded configuration first.
func RunWithApp(ctx context.Context, configure func(*config.Config), fn func(context.Context, *bootstrap.App) error) error {
	deps, err := NewCommandDeps()
	if err != nil {
		return err
	}
	defer func() { _ = deps.Logger.Sync() }()

	if configure != nil {
		configure(deps.Config)
	}

	app, err := bootstrap.New(ctx, deps.Config, deps.Logger)
	if err != nil {
		deps.Logger.Error("Failed to initialize", logger.Error(err))
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			deps.Logger.Warn("Failed to close connections", logger.Error(closeErr))
		}
	}()

	return fn(ctx, app)
}
