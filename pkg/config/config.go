// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Training, Session, Redis, Postgres, Kafka, etc.).
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
	Training TrainingConfig `yaml:"training"`
	Session  SessionConfig  `yaml:"session"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// TrainingConfig holds the word2vec hyperparameters applied at session init.
// Values submitted with an init request override these defaults per session.
type TrainingConfig struct {
	HiddenSize int     `yaml:"hiddenSize"`
	Alpha      float64 `yaml:"alpha"`
	MinAlpha   float64 `yaml:"minAlpha"`
	Window     int     `yaml:"window"`
	MinCount   int     `yaml:"minCount"`
	Negative   int     `yaml:"negative"`
	Iter       int     `yaml:"iter"`
	SkipGram   bool    `yaml:"skipGram"`
	CBOWMean   bool    `yaml:"cbowMean"`
	Seed       int64   `yaml:"seed"`
}

// SessionConfig controls training-burst scheduling.
type SessionConfig struct {
	BurstDeadline time.Duration `yaml:"burstDeadline"`
	TopRanks      int           `yaml:"topRanks"`
}

// RedisConfig holds Redis connection and ranking-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters for the rank-history
// store.
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
	CorpusIngest   string `yaml:"corpusIngest"`
	TrainingEvents string `yaml:"trainingEvents"`
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
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := Validate(cfg.Training); err != nil {
		return nil, err
	}
	if cfg.Session.TopRanks < 1 {
		return nil, fmt.Errorf("session.topRanks must be >= 1, got %d", cfg.Session.TopRanks)
	}
	return cfg, nil
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Training: DefaultTraining(),
		Session: SessionConfig{
			BurstDeadline: 100 * time.Millisecond,
			TopRanks:      10,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Postgres: PostgresConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			Database:        "wordveclab",
			User:            "wordveclab",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "wordveclab-group",
			Topics: KafkaTopics{
				CorpusIngest:   "corpus-ingest",
				TrainingEvents: "training-events",
			},
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

// DefaultTraining returns the default word2vec hyperparameters. These are the
// values an interactive session starts with before the caller overrides them
// at init.
func DefaultTraining() TrainingConfig {
	return TrainingConfig{
		HiddenSize: 16,
		Alpha:      0.2,
		MinAlpha:   0.0001,
		Window:     2,
		MinCount:   1,
		Negative:   3,
		Iter:       100,
		SkipGram:   false,
		CBOWMean:   true,
		Seed:       1,
	}
}

// Validate rejects hyperparameter combinations the engine cannot run with.
func Validate(t TrainingConfig) error {
	if t.HiddenSize < 1 {
		return fmt.Errorf("training.hiddenSize must be >= 1, got %d", t.HiddenSize)
	}
	if t.MinCount < 1 {
		return fmt.Errorf("training.minCount must be >= 1, got %d", t.MinCount)
	}
	if t.Window < 0 {
		return fmt.Errorf("training.window must be >= 0, got %d", t.Window)
	}
	if t.Negative < 0 {
		return fmt.Errorf("training.negative must be >= 0, got %d", t.Negative)
	}
	if t.Iter < 1 {
		return fmt.Errorf("training.iter must be >= 1, got %d", t.Iter)
	}
	if t.Alpha < t.MinAlpha {
		return fmt.Errorf("training.alpha %v must be >= training.minAlpha %v", t.Alpha, t.MinAlpha)
	}
	return nil
}

// applyEnvOverrides reads WL_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WL_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WL_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("WL_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WL_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("WL_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("WL_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("WL_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("WL_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("WL_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("WL_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("WL_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WL_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("WL_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if v := os.Getenv("WL_TRAINING_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Training.Seed = seed
		}
	}
}
