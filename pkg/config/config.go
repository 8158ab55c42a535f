// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Store, Kafka, Redis, Tokenizer, Logging, Metrics).
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
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Similar   SimilarConfig   `yaml:"similar"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// SlowRequest is the latency above which a request's span tree is
	// logged. Zero disables tracing.
	SlowRequest time.Duration `yaml:"slowRequest"`
}

// StoreConfig selects and parameterises the snapshot database. Driver is
// "postgres" or "sqlite3"; an empty driver disables persistence.
type StoreConfig struct {
	Driver           string        `yaml:"driver"`
	Path             string        `yaml:"path"`
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Database         string        `yaml:"database"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	SSLMode          string        `yaml:"sslMode"`
	MaxOpenConns     int           `yaml:"maxOpenConns"`
	MaxIdleConns     int           `yaml:"maxIdleConns"`
	ConnMaxLifetime  time.Duration `yaml:"connMaxLifetime"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	SnapshotTimeout  time.Duration `yaml:"snapshotTimeout"`
}

// DSN returns a data source name for the configured driver.
func (s StoreConfig) DSN() string {
	if s.Driver == "sqlite3" {
		return s.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.Host, s.Port, s.User, s.Password, s.Database, s.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Brokers          []string      `yaml:"brokers"`
	ConsumerGroup    string        `yaml:"consumerGroup"`
	Topics           KafkaTopics   `yaml:"topics"`
	WriteTimeout     time.Duration `yaml:"writeTimeout"`
	AutoCreateTopics bool          `yaml:"autoCreateTopics"`
	// HandlerAttempts is how many times a consumed document is offered to
	// the indexer before it is given up on.
	HandlerAttempts int `yaml:"handlerAttempts"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest     string `yaml:"documentIngest"`
	DocumentVectorized string `yaml:"documentVectorized"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled bool `yaml:"enabled"`
	// Addr is host:port or a redis:// URL.
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	OpTimeout time.Duration `yaml:"opTimeout"`
}

// TokenizerConfig controls splitting, stop-word removal and stemming.
type TokenizerConfig struct {
	Pattern         string `yaml:"pattern"`
	Stemmer         string `yaml:"stemmer"`
	Language        string `yaml:"language"`
	RemoveStopWords bool   `yaml:"removeStopWords"`
	StopWordsFile   string `yaml:"stopWordsFile"`
	MinLength       int    `yaml:"minLength"`
	CacheNormalized bool   `yaml:"cacheNormalized"`
}

// SimilarConfig bounds nearest-document queries.
type SimilarConfig struct {
	DefaultK int `yaml:"defaultK"`
	MaxK     int `yaml:"maxK"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
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
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			SlowRequest:     500 * time.Millisecond,
		},
		Store: StoreConfig{
			Driver:           "sqlite3",
			Path:             "data/termvec.db",
			Host:             "localhost",
			Port:             5432,
			Database:         "termvec",
			User:             "termvec",
			Password:         "localdev",
			SSLMode:          "disable",
			MaxOpenConns:     10,
			MaxIdleConns:     2,
			ConnMaxLifetime:  5 * time.Minute,
			SnapshotInterval: time.Minute,
			SnapshotTimeout:  30 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "termvec-group",
			Topics: KafkaTopics{
				DocumentIngest:     "document-ingest",
				DocumentVectorized: "document-vectorized",
			},
			WriteTimeout:    5 * time.Second,
			HandlerAttempts: 3,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			CacheTTL:  5 * time.Minute,
			OpTimeout: 100 * time.Millisecond,
		},
		Tokenizer: TokenizerConfig{
			Stemmer:         "snowball",
			Language:        "english",
			RemoveStopWords: true,
			MinLength:       1,
			CacheNormalized: true,
		},
		Similar: SimilarConfig{
			DefaultK: 10,
			MaxK:     100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "", "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid store driver %q: want postgres or sqlite3", c.Store.Driver)
	}
	if c.Store.Driver != "" && (c.Store.SnapshotInterval <= 0 || c.Store.SnapshotTimeout <= 0) {
		return fmt.Errorf("invalid snapshot timing: interval=%v timeout=%v", c.Store.SnapshotInterval, c.Store.SnapshotTimeout)
	}
	switch c.Tokenizer.Stemmer {
	case "", "none", "snowball", "suffix":
	default:
		return fmt.Errorf("invalid tokenizer stemmer %q", c.Tokenizer.Stemmer)
	}
	if c.Similar.MaxK < 1 || c.Similar.DefaultK < 1 || c.Similar.DefaultK > c.Similar.MaxK {
		return fmt.Errorf("invalid similar limits: defaultK=%d maxK=%d", c.Similar.DefaultK, c.Similar.MaxK)
	}
	return nil
}

// applyEnvOverrides reads TV_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TV_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TV_SERVER_SLOW_REQUEST"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.SlowRequest = d
		}
	}
	if v, ok := os.LookupEnv("TV_STORE_DRIVER"); ok {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("TV_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("TV_STORE_HOST"); v != "" {
		cfg.Store.Host = v
	}
	if v := os.Getenv("TV_STORE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Store.Port = port
		}
	}
	if v := os.Getenv("TV_STORE_DATABASE"); v != "" {
		cfg.Store.Database = v
	}
	if v := os.Getenv("TV_STORE_USER"); v != "" {
		cfg.Store.User = v
	}
	if v := os.Getenv("TV_STORE_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("TV_STORE_SSLMODE"); v != "" {
		cfg.Store.SSLMode = v
	}
	if v := os.Getenv("TV_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("TV_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TV_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
	if v := os.Getenv("TV_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TV_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TV_TOKENIZER_STEMMER"); v != "" {
		cfg.Tokenizer.Stemmer = v
	}
	if v := os.Getenv("TV_TOKENIZER_STOPWORDS_FILE"); v != "" {
		cfg.Tokenizer.StopWordsFile = v
	}
	if v := os.Getenv("TV_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TV_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
