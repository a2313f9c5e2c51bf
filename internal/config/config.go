package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"triage-service/internal/classifier"
	"triage-service/internal/repository"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the service looks for its config file.
const DefaultPath = "configs/config.yml"

// Config holds application configuration
type Config struct {
	Server    ServerConfig       `yaml:"server"`
	Profile   classifier.Profile `yaml:"profile"`
	Database  DatabaseConfig     `yaml:"database"`
	Inference InferenceConfig    `yaml:"inference"`
	Kafka     KafkaConfig        `yaml:"kafka"`
	Auth      AuthConfig         `yaml:"auth"`
	Log       LogConfig          `yaml:"log"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

type DatabaseConfig struct {
	Type repository.Dialect `yaml:"type"`
	Path string             `yaml:"path"` // SQLite path or PostgreSQL URL
}

type InferenceConfig struct {
	URL            string        `yaml:"url"` // empty disables the upstream models
	Timeout        time.Duration `yaml:"timeout"`
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`
	MaxFailures    uint32        `yaml:"max_failures"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // empty leaves analytics routes open
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// LoadConfig loads configuration from a YAML file. A .env file in the
// working directory is loaded first and ${VAR} references are expanded.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "5000"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 32 << 20
	}

	if c.Profile == "" {
		c.Profile = classifier.ProfileLite
	}

	if c.Database.Type == "" {
		c.Database.Type = repository.DialectSQLite
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/predictions.db"
	}

	if c.Inference.Timeout == 0 {
		c.Inference.Timeout = 30 * time.Second
	}
	if c.Inference.BreakerTimeout == 0 {
		c.Inference.BreakerTimeout = 30 * time.Second
	}
	if c.Inference.MaxFailures == 0 {
		c.Inference.MaxFailures = 5
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "disaster-predictions"
	}
	if c.Kafka.WriteTimeout == 0 {
		c.Kafka.WriteTimeout = 5 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the settings that have no usable default and normalizes
// the profile and database type to their canonical values.
func (c *Config) Validate() error {
	profile, err := classifier.ParseProfile(string(c.Profile))
	if err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	c.Profile = profile

	dialect, err := repository.ParseDialect(string(c.Database.Type))
	if err != nil {
		return fmt.Errorf("invalid database type: %w", err)
	}
	c.Database.Type = dialect

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka is enabled but no brokers are configured")
		}
		for _, b := range c.Kafka.Brokers {
			if strings.TrimSpace(b) == "" {
				return errors.New("kafka broker address must not be empty")
			}
		}
	}

	if c.Server.MaxUploadBytes < 0 {
		return errors.New("server.max_upload_bytes must not be negative")
	}
	return nil
}
