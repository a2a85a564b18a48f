// Package domain holds the canonical records produced by the ingestion
// pipeline and the static connector configuration that drives it.
package domain

import (
	"errors"
	"fmt"
)

// ConnectorType is the document shape a source serves.
type ConnectorType string

const (
	ConnectorTypeXML ConnectorType = "xml"
	ConnectorTypeAPI ConnectorType = "api"
	ConnectorTypeRSS ConnectorType = "rss"
)

// Frequency is the coarse recurring schedule of a source.
type Frequency string

const (
	FrequencyRealtime Frequency = "realtime"
	FrequencyHourly   Frequency = "hourly"
	Frequency6h       Frequency = "6h"
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
)

// Priority bounds for ConnectorConfig.Priority, 1 being most urgent.
const (
	MinPriority = 1
	MaxPriority = 3
)

// ErrInvalidConnector is wrapped by every ConnectorConfig validation failure.
var ErrInvalidConnector = errors.New("invalid connector config")

// ConnectorConfig describes one external source. Values are compiled in and
// never mutated after startup.
type ConnectorConfig struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Type      ConnectorType     `json:"type" yaml:"type"`
	URL       string            `json:"url" yaml:"url"`
	Frequency Frequency         `json:"frequency" yaml:"frequency"`
	Priority  int               `json:"priority" yaml:"priority"`
	RateLimit string            `json:"rate_limit" yaml:"rate_limit"`
	Language  string            `json:"language,omitempty" yaml:"language,omitempty"`
	Enabled   bool              `json:"enabled" yaml:"enabled"`
	AuthEnv   string            `json:"auth_env,omitempty" yaml:"auth_env,omitempty"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Keywords overrides the language keyword list for content sources.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// IsSanctions reports whether the source yields SanctionEntry records.
// Feeds are the only content sources.
func (c ConnectorConfig) IsSanctions() bool {
	return c.Type != ConnectorTypeRSS
}

// Validate checks the static fields that do not depend on other packages.
func (c ConnectorConfig) Validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidConnector)
	case c.URL == "":
		return fmt.Errorf("%w: %s: empty url", ErrInvalidConnector, c.ID)
	case c.Priority < MinPriority || c.Priority > MaxPriority:
		return fmt.Errorf("%w: %s: priority %d out of range", ErrInvalidConnector, c.ID, c.Priority)
	}

	switch c.Type {
	case ConnectorTypeXML, ConnectorTypeAPI, ConnectorTypeRSS:
	default:
		return fmt.Errorf("%w: %s: unknown type %q", ErrInvalidConnector, c.ID, c.Type)
	}

	switch c.Frequency {
	case FrequencyRealtime, FrequencyHourly, Frequency6h, FrequencyDaily, FrequencyWeekly:
	default:
		return fmt.Errorf("%w: %s: unknown frequency %q", ErrInvalidConnector, c.ID, c.Frequency)
	}

	return nil
}
