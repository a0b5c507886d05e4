// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Driver        string `yaml:"driver"`
	Filename      string `yaml:"filename"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

type BookingConfig struct {
	// LockBackend selects how concurrent bookings of one slot are serialized: "memory" or "redis".
	LockBackend          string        `yaml:"lock_backend"`
	LockTTL              time.Duration `yaml:"lock_ttl"`
	AttemptsPerMinute    int           `yaml:"attempts_per_minute"`
	IdempotencyRetention time.Duration `yaml:"idempotency_retention"`
	PurgeInterval        time.Duration `yaml:"purge_interval"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"` // Loaded from environment
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type EmailConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Sender          string `yaml:"sender"`
	AccessKeyID     string `yaml:"-"` // Loaded from environment
	SecretAccessKey string `yaml:"-"` // Loaded from environment
}

type TracingConfig struct {
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
		// TrustProxy makes rate limiting key on X-Forwarded-For instead of the peer address.
		TrustProxy  bool   `yaml:"trust_proxy"`
	} `yaml:"app"`

	Database DatabaseConfig `yaml:"database"`

	Features struct {
		EnableTracing bool `yaml:"enable_tracing"`
		EnableDebug   bool `yaml:"enable_debug"`
	} `yaml:"features"`

	Booking BookingConfig `yaml:"booking"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Email   EmailConfig   `yaml:"email"`
	Tracing TracingConfig `yaml:"tracing"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML, applies defaults, reads secrets from the environment and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg.applyDefaults()

	// Sensitive values only come from the environment
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Email.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Email.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.BusyTimeoutMS == 0 {
		c.Database.BusyTimeoutMS = 5000
	}
	if c.Booking.LockBackend == "" {
		c.Booking.LockBackend = "memory"
	}
	if c.Booking.LockTTL == 0 {
		c.Booking.LockTTL = 10 * time.Second
	}
	if c.Booking.AttemptsPerMinute == 0 {
		c.Booking.AttemptsPerMinute = 30
	}
	if c.Booking.IdempotencyRetention == 0 {
		c.Booking.IdempotencyRetention = 24 * time.Hour
	}
	if c.Booking.PurgeInterval == 0 {
		c.Booking.PurgeInterval = time.Hour
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "booking.confirmed.v1"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.App.Name
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch c.Booking.LockBackend {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("redis addr is required when booking.lock_backend is redis")
		}
	default:
		return fmt.Errorf("unsupported booking lock backend: %s", c.Booking.LockBackend)
	}
	if c.Booking.AttemptsPerMinute < 0 {
		return fmt.Errorf("booking attempts_per_minute must not be negative")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	if c.Email.Enabled {
		if c.Email.Region == "" || c.Email.Sender == "" {
			return fmt.Errorf("email region and sender are required when email is enabled")
		}
	}

	if c.Features.EnableTracing {
		if c.Tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing otlp_endpoint is required when tracing is enabled")
		}
		if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
			return fmt.Errorf("tracing sample_ratio must be between 0 and 1")
		}
	}

	return nil
}
