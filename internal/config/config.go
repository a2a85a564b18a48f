package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
)

// Config is the full ingestor configuration.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Logging       logger.Config       `yaml:"logging"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Queues        QueuesConfig        `yaml:"queues"`
	Fetcher       FetcherConfig       `yaml:"fetcher"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Server        ServerConfig        `yaml:"server"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	MinIO         MinIOConfig         `yaml:"minio"`
	Enrichment    EnrichmentConfig    `yaml:"enrichment"`
	Auth          AuthConfig          `yaml:"auth"`
}

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version" env:"SERVICE_VERSION"`
	Environment string `yaml:"environment" env:"APP_ENV"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"DB_HOST"`
	Port            string        `yaml:"port" env:"DB_PORT"`
	User            string        `yaml:"user" env:"DB_USER"`
	Password        string        `yaml:"password" env:"DB_PASSWORD"`
	DBName          string        `yaml:"dbname" env:"DB_NAME"`
	SSLMode         string        `yaml:"sslmode" env:"DB_SSLMODE"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN returns a lib/pq keyword/value connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns a postgres:// URL, the form golang-migrate expects.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Address   string `yaml:"address" env:"REDIS_ADDRESS"`
	Password  string `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX"`
}

// QueueConfig overrides the built-in options of one queue. Zero fields keep
// the queue's default.
type QueueConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Attempts    int           `yaml:"attempts"`
	Backoff     time.Duration `yaml:"backoff"`
	BackoffType string        `yaml:"backoff_type"`
	Timeout     time.Duration `yaml:"timeout"`
}

type QueuesConfig struct {
	Crawl             QueueConfig   `yaml:"crawl"`
	Sanctions         QueueConfig   `yaml:"sanctions"`
	Enrichment        QueueConfig   `yaml:"enrichment"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	Retention         time.Duration `yaml:"retention"`
	PollInterval      time.Duration `yaml:"poll_interval"`
}

// FetcherConfig controls outbound HTTP requests to sources.
type FetcherConfig struct {
	Timeout          time.Duration `yaml:"timeout" env:"FETCHER_TIMEOUT"`
	UserAgent        string        `yaml:"user_agent" env:"FETCHER_USER_AGENT"`
	MaxAttempts      int           `yaml:"max_attempts" env:"FETCHER_MAX_ATTEMPTS"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes"`
}

type RateLimitConfig struct {
	// Store is "memory" or "redis".
	Store string `yaml:"store" env:"RATE_LIMIT_STORE"`
}

type SchedulerConfig struct {
	LeaderTTL time.Duration `yaml:"leader_ttl"`
	Timezone  string        `yaml:"timezone" env:"SCHEDULER_TZ"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	Debug        bool          `yaml:"debug" env:"APP_DEBUG"`
}

// ElasticsearchConfig enables indexing of newly stored content.
type ElasticsearchConfig struct {
	Enabled   bool     `yaml:"enabled" env:"ELASTICSEARCH_ENABLED"`
	Addresses []string `yaml:"addresses" env:"ELASTICSEARCH_ADDRESSES"`
	Username  string   `yaml:"username" env:"ELASTICSEARCH_USERNAME"`
	Password  string   `yaml:"password" env:"ELASTICSEARCH_PASSWORD"`
	APIKey    string   `yaml:"api_key" env:"ELASTICSEARCH_API_KEY"`
	Index     string   `yaml:"index" env:"ELASTICSEARCH_INDEX"`
}

// MinIOConfig enables archiving of raw fetched documents.
type MinIOConfig struct {
	Enabled   bool   `yaml:"enabled" env:"MINIO_ENABLED"`
	Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
	UseSSL    bool   `yaml:"use_ssl" env:"MINIO_USE_SSL"`
	Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
}

// EnrichmentConfig points at the external matching service. An empty URL
// disables matching; enrichment jobs then complete with zero matches.
type EnrichmentConfig struct {
	URL     string        `yaml:"url" env:"ENRICHMENT_URL"`
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig protects /api/v1. An empty secret leaves it open.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

const (
	defaultServiceName     = "watchlist-ingestor"
	defaultServiceVersion  = "dev"
	defaultDBHost          = "localhost"
	defaultDBPort          = "5432"
	defaultDBUser          = "postgres"
	defaultDBName          = "watchlist"
	defaultDBSSLMode       = "disable"
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultRedisAddress    = "localhost:6379"
	defaultKeyPrefix       = "ingestor"
	defaultVisibility      = 10 * time.Minute
	defaultRetention       = 7 * 24 * time.Hour
	defaultPollInterval    = time.Second
	defaultFetchTimeout    = 30 * time.Second
	defaultUserAgent       = "NorthCloud-WatchlistIngestor/1.0 (+https://northcloud.one)"
	defaultFetchAttempts   = 3
	defaultBackoffBase     = 2 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerCooldown = time.Minute
	defaultMaxBodyBytes    = 256 << 20
	defaultLeaderTTL       = 30 * time.Second
	defaultServerPort      = 8070
	defaultServerRead      = 15 * time.Second
	defaultServerWrite     = 30 * time.Second
	defaultServerIdle      = 60 * time.Second
	defaultESIndex         = "watchlist_content"
	defaultMinIOBucket     = "watchlist-raw"
	defaultMatchTimeout    = 10 * time.Second

	// RateLimitStoreMemory keeps counters in process.
	RateLimitStoreMemory = "memory"
	// RateLimitStoreRedis keeps counters in Redis, shared by all workers.
	RateLimitStoreRedis = "redis"
)

// Load reads configuration from path. See package docs for precedence.
func Load(path string) (*Config, error) {
	cfg, err := LoadWithDefaults[Config](path, setDefaults)
	if err != nil {
		return nil, err
	}
	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("invalid config: %w", validateErr)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	setString(&cfg.Service.Name, defaultServiceName)
	setString(&cfg.Service.Version, defaultServiceVersion)
	setString(&cfg.Service.Environment, "production")

	cfg.Logging.SetDefaults()

	setString(&cfg.Database.Host, defaultDBHost)
	setString(&cfg.Database.Port, defaultDBPort)
	setString(&cfg.Database.User, defaultDBUser)
	setString(&cfg.Database.DBName, defaultDBName)
	setString(&cfg.Database.SSLMode, defaultDBSSLMode)
	setInt(&cfg.Database.MaxOpenConns, defaultMaxOpenConns)
	setInt(&cfg.Database.MaxIdleConns, defaultMaxIdleConns)
	setDuration(&cfg.Database.ConnMaxLifetime, defaultConnMaxLifetime)

	setString(&cfg.Redis.Address, defaultRedisAddress)
	setString(&cfg.Redis.KeyPrefix, defaultKeyPrefix)

	setDuration(&cfg.Queues.VisibilityTimeout, defaultVisibility)
	setDuration(&cfg.Queues.Retention, defaultRetention)
	setDuration(&cfg.Queues.PollInterval, defaultPollInterval)

	setDuration(&cfg.Fetcher.Timeout, defaultFetchTimeout)
	setString(&cfg.Fetcher.UserAgent, defaultUserAgent)
	setInt(&cfg.Fetcher.MaxAttempts, defaultFetchAttempts)
	setDuration(&cfg.Fetcher.BackoffBase, defaultBackoffBase)
	setInt(&cfg.Fetcher.BreakerThreshold, defaultBreakerFailures)
	setDuration(&cfg.Fetcher.BreakerCooldown, defaultBreakerCooldown)
	if cfg.Fetcher.MaxBodyBytes == 0 {
		cfg.Fetcher.MaxBodyBytes = defaultMaxBodyBytes
	}

	setString(&cfg.RateLimit.Store, RateLimitStoreRedis)
	setDuration(&cfg.Scheduler.LeaderTTL, defaultLeaderTTL)
	setString(&cfg.Scheduler.Timezone, "UTC")

	setInt(&cfg.Server.Port, defaultServerPort)
	setDuration(&cfg.Server.ReadTimeout, defaultServerRead)
	setDuration(&cfg.Server.WriteTimeout, defaultServerWrite)
	setDuration(&cfg.Server.IdleTimeout, defaultServerIdle)

	if len(cfg.Elasticsearch.Addresses) == 0 {
		cfg.Elasticsearch.Addresses = []string{"http://127.0.0.1:9200"}
	}
	setString(&cfg.Elasticsearch.Index, defaultESIndex)
	setString(&cfg.MinIO.Bucket, defaultMinIOBucket)
	setDuration(&cfg.Enrichment.Timeout, defaultMatchTimeout)
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs,
		validateRequired("service.name", c.Service.Name),
		validateOneOf("logging.level", c.Logging.Level, "debug", "info", "warn", "warning", "error", "fatal"),
		validateOneOf("logging.format", c.Logging.Format, logger.FormatJSON, logger.FormatConsole),
		validateRequired("database.host", c.Database.Host),
		validateRequired("redis.address", c.Redis.Address),
		validatePositive("fetcher.max_attempts", c.Fetcher.MaxAttempts),
		validateOneOf("rate_limit.store", c.RateLimit.Store, RateLimitStoreMemory, RateLimitStoreRedis),
		validatePort("server.port", c.Server.Port),
		validateURL("enrichment.url", c.Enrichment.URL),
	)

	for name, q := range map[string]QueueConfig{
		"crawl":      c.Queues.Crawl,
		"sanctions":  c.Queues.Sanctions,
		"enrichment": c.Queues.Enrichment,
	} {
		errs = append(errs, validateQueue("queues."+name, q))
	}

	if c.MinIO.Enabled {
		errs = append(errs, validateRequired("minio.endpoint", c.MinIO.Endpoint))
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		errs = append(errs, &ValidationError{Field: "scheduler.timezone", Message: err.Error()})
	}

	return errors.Join(errs...)
}

func validateQueue(prefix string, q QueueConfig) error {
	if q.Concurrency < 0 || q.Attempts < 0 || q.Backoff < 0 || q.Timeout < 0 {
		return &ValidationError{Field: prefix, Message: "values must not be negative"}
	}
	if q.BackoffType != "" {
		return validateOneOf(prefix+".backoff_type", q.BackoffType, "exponential", "fixed")
	}
	return nil
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}
