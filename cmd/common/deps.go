// Package common provides shared setup for command implementations.
package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
)

// Viper keys bound by the root command.
const (
	KeyConfig   = "config"
	KeyDebug    = "debug"
	KeyLogLevel = "log_level"
)

var (
	// ErrLoggerRequired is returned when CommandDeps.Logger is nil.
	ErrLoggerRequired = errors.New("logger is required")
	// ErrConfigRequired is returned when CommandDeps.Config is nil.
	ErrConfigRequired = errors.New("config is required")
)

// CommandDeps holds the dependencies every command starts from.
type CommandDeps struct {
	Config *config.Config
	Logger logger.Logger
}

// Validate ensures all required dependencies are present.
func (d CommandDeps) Validate() error {
	if d.Logger == nil {
		return ErrLoggerRequired
	}
	if d.Config == nil {
		return ErrConfigRequired
	}
	return nil
}

// NewCommandDeps loads the configuration and builds the logger. --debug and
// LOG_LEVEL, read through viper, override the file's logging level.
func NewCommandDeps() (CommandDeps, error) {
	cfg, err := config.Load(config.ResolvePath(viper.GetString(KeyConfig)))
	if err != nil {
		return CommandDeps{}, fmt.Errorf("load config: %w", err)
	}
	ApplyOverrides(cfg)

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return CommandDeps{}, fmt.Errorf("create logger: %w", err)
	}

	deps := CommandDeps{Config: cfg, Logger: log.With(
		logger.String("service", cfg.Service.Name),
		logger.String("version", cfg.Service.Version),
	)}
	return deps, deps.Validate()
}

// ApplyOverrides applies flag and environment values held by viper.
func ApplyOverrides(cfg *config.Config) {
	if level := strings.ToLower(viper.GetString(KeyLogLevel)); level != "" {
		cfg.Logging.Level = level
	}
	if viper.GetBool(KeyDebug) {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
		cfg.Logging.Format = logger.FormatConsole
		cfg.Server.Debug = true
	}
}
