package fetcher

import "time"

const (
	// DefaultUserAgent identifies the ingestor to source operators.
	DefaultUserAgent = "NorthCloud-WatchlistIngestor/1.0 (+https://northcloud.one)"

	defaultTimeout      = 30 * time.Second
	defaultMaxAttempts  = 3
	defaultBackoffBase  = 2 * time.Second
	defaultMaxBodyBytes = 256 << 20
	defaultAccept       = "*/*"
)

// Config holds RetryingFetcher settings.
type Config struct {
	// Timeout bounds each attempt, including reading the body.
	Timeout   time.Duration
	UserAgent string
	// MaxAttempts is the total number of attempts, not the number of retries.
	MaxAttempts int
	// BackoffBase is the wait after the first failure; later waits double.
	BackoffBase  time.Duration
	MaxBodyBytes int64
}

// WithDefaults returns a copy with zero fields defaulted.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return c
}
