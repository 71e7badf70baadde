// Package config loads the matcher service configuration from a YAML file
// with FZ_* environment-variable overrides applied on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Matcher  MatcherConfig  `yaml:"matcher"`
	Haystack HaystackConfig `yaml:"haystack"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// RateLimit is the number of search requests a client may issue per
	// RateWindow. Zero disables limiting.
	RateLimit  int           `yaml:"rateLimit"`
	RateWindow time.Duration `yaml:"rateWindow"`

	// RPCAddr enables the line-delimited JSON listener used by launcher
	// frontends: "unix:/path/to.sock" or "host:port". Empty disables it.
	RPCAddr string `yaml:"rpcAddr"`
}

// MatcherConfig controls the scorer and dispatcher.
type MatcherConfig struct {
	// Workers is the parallelism of one search; 0 uses the CPU count.
	Workers int `yaml:"workers"`

	// Vector is "auto" or "off". "off" forces the scalar locator.
	Vector        string        `yaml:"vector"`
	DefaultLimit  int           `yaml:"defaultLimit"`
	MaxResults    int           `yaml:"maxResults"`
	SearchTimeout time.Duration `yaml:"searchTimeout"`
}

// HaystackConfig selects where candidate strings come from.
type HaystackConfig struct {
	// Source is one of "file", "postgres" or "inline".
	Source   string        `yaml:"source"`
	Path     string        `yaml:"path"`
	Watch    bool          `yaml:"watch"`
	Table    string        `yaml:"table"`
	Entries  []string      `yaml:"entries"`
	Debounce time.Duration `yaml:"debounce"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`

	// SnapshotInterval controls how often analytics are persisted.
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SearchEvents   string `yaml:"searchEvents"`
	HaystackReload string `yaml:"haystackReload"`
}

// RedisConfig holds Redis connection and result-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging for search requests.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
	Pprof   bool `yaml:"pprof"`
}

// Load reads a YAML config file (if path is non-empty), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       0,
			RateWindow:      time.Second,
		},
		Matcher: MatcherConfig{
			Workers:       0,
			Vector:        "auto",
			DefaultLimit:  20,
			MaxResults:    500,
			SearchTimeout: 2 * time.Second,
		},
		Haystack: HaystackConfig{
			Source:   "file",
			Path:     "haystack.txt",
			Table:    "candidates",
			Debounce: 500 * time.Millisecond,
		},
		Postgres: PostgresConfig{
			Host:             "localhost",
			Port:             5432,
			Database:         "fuzzysearch",
			User:             "fuzzysearch",
			Password:         "localdev",
			SSLMode:          "disable",
			MaxOpenConns:     10,
			MaxIdleConns:     2,
			ConnMaxLifetime:  5 * time.Minute,
			SnapshotInterval: time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "fuzzysearch-group",
			Topics: KafkaTopics{
				SearchEvents:   "fuzzy-search-events",
				HaystackReload: "fuzzy-haystack-reload",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate reports the first configuration value that cannot be served.
func (c *Config) Validate() error {
	switch c.Matcher.Vector {
	case "auto", "off":
	default:
		return fmt.Errorf("matcher.vector must be auto or off, got %q", c.Matcher.Vector)
	}
	if c.Matcher.Workers < 0 {
		return fmt.Errorf("matcher.workers must not be negative, got %d", c.Matcher.Workers)
	}
	if c.Matcher.DefaultLimit < 1 || c.Matcher.MaxResults < c.Matcher.DefaultLimit {
		return fmt.Errorf("matcher limits invalid: default %d, max %d", c.Matcher.DefaultLimit, c.Matcher.MaxResults)
	}
	switch c.Haystack.Source {
	case "file":
		if c.Haystack.Path == "" {
			return fmt.Errorf("haystack.path is required for the file source")
		}
	case "postgres":
		if !c.Postgres.Enabled {
			return fmt.Errorf("haystack source postgres requires postgres.enabled")
		}
		if c.Haystack.Table == "" {
			return fmt.Errorf("haystack.table is required for the postgres source")
		}
	case "inline":
	default:
		return fmt.Errorf("haystack.source must be file, postgres or inline, got %q", c.Haystack.Source)
	}
	return nil
}

// applyEnvOverrides reads FZ_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	envInt("FZ_SERVER_PORT", &cfg.Server.Port)
	envInt("FZ_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	envString("FZ_SERVER_RPC_ADDR", &cfg.Server.RPCAddr)
	envInt("FZ_MATCHER_WORKERS", &cfg.Matcher.Workers)
	envString("FZ_MATCHER_VECTOR", &cfg.Matcher.Vector)
	envInt("FZ_MATCHER_DEFAULT_LIMIT", &cfg.Matcher.DefaultLimit)
	envInt("FZ_MATCHER_MAX_RESULTS", &cfg.Matcher.MaxResults)
	envString("FZ_HAYSTACK_SOURCE", &cfg.Haystack.Source)
	envString("FZ_HAYSTACK_PATH", &cfg.Haystack.Path)
	envBool("FZ_HAYSTACK_WATCH", &cfg.Haystack.Watch)
	envString("FZ_HAYSTACK_TABLE", &cfg.Haystack.Table)
	envBool("FZ_POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	envString("FZ_POSTGRES_HOST", &cfg.Postgres.Host)
	envInt("FZ_POSTGRES_PORT", &cfg.Postgres.Port)
	envString("FZ_POSTGRES_DATABASE", &cfg.Postgres.Database)
	envString("FZ_POSTGRES_USER", &cfg.Postgres.User)
	envString("FZ_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	envString("FZ_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	envBool("FZ_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("FZ_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	envBool("FZ_REDIS_ENABLED", &cfg.Redis.Enabled)
	envString("FZ_REDIS_ADDR", &cfg.Redis.Addr)
	envString("FZ_REDIS_PASSWORD", &cfg.Redis.Password)
	envString("FZ_LOGGING_LEVEL", &cfg.Logging.Level)
	envString("FZ_LOGGING_FORMAT", &cfg.Logging.Format)
	envBool("FZ_TRACING_ENABLED", &cfg.Tracing.Enabled)
	envInt("FZ_METRICS_PORT", &cfg.Metrics.Port)
	envBool("FZ_METRICS_PPROF", &cfg.Metrics.Pprof)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
