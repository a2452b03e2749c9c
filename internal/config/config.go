package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration. It is
// loaded once at process start and passed by value to constructors;
// nothing mutates it afterwards.
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Issuer  IssuerConfig  `yaml:"issuer" envconfig:"ISSUER"`
	Client  ClientConfig  `yaml:"client" envconfig:"CLIENT"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration for the issuer service
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration for /validate
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// IssuerConfig contains issuer-side configuration: the shared signing
// secret, the admin API key, and the license store location.
type IssuerConfig struct {
	SharedSecret string `yaml:"shared_secret" envconfig:"SHARED_SECRET"`
	APIKey       string `yaml:"api_key" envconfig:"API_KEY"`
	DatabasePath string `yaml:"database_path" envconfig:"DATABASE_PATH"`
	Version      string `yaml:"version" envconfig:"VERSION"`
}

// ClientConfig contains client-validator configuration. TTL bounds how
// long a fetched verdict counts as fresh; GraceWindow bounds how long an
// unreachable issuer may be bridged on a cached valid verdict and must
// be strictly larger than TTL.
type ClientConfig struct {
	IssuerURL      string        `yaml:"issuer_url" envconfig:"ISSUER_URL"`
	LicenseKey     string        `yaml:"license_key" envconfig:"LICENSE_KEY"`
	SharedSecret   string        `yaml:"shared_secret" envconfig:"SHARED_SECRET"`
	CachePath      string        `yaml:"cache_path" envconfig:"CACHE_PATH"`
	TTL            time.Duration `yaml:"ttl" envconfig:"TTL"`
	GraceWindow    time.Duration `yaml:"grace_window" envconfig:"GRACE_WINDOW"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// Default returns the built-in configuration. Defaults live here rather
// than in envconfig tags so that the file can override a default and the
// environment can override the file.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     50,
				Burst:   25,
			},
		},
		Issuer: IssuerConfig{
			DatabasePath: "data/licenses.db",
			Version:      "1.0.0",
		},
		Client: ClientConfig{
			IssuerURL:      "http://localhost:8090",
			CachePath:      "data/license-cache.json",
			TTL:            time.Hour,
			GraceWindow:    168 * time.Hour,
			RequestTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/license.log",
		},
	}
}

// Load loads configuration from the optional YAML file and then from
// TBOT_-prefixed environment variables; environment takes precedence.
func Load() (*Config, error) {
	return LoadFrom(configFilePath())
}

// LoadFrom is Load with an explicit config file path, used by tests.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Environment overrides the file.
	if err := envconfig.Process("TBOT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func configFilePath() string {
	if p := os.Getenv("TBOT_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Client.TTL <= 0 {
		return fmt.Errorf("client ttl must be positive, got %s", c.Client.TTL)
	}
	if c.Client.GraceWindow <= c.Client.TTL {
		return fmt.Errorf("grace window (%s) must be strictly larger than ttl (%s)",
			c.Client.GraceWindow, c.Client.TTL)
	}
	if c.Client.RequestTimeout <= 0 {
		return fmt.Errorf("client request timeout must be positive, got %s", c.Client.RequestTimeout)
	}
	return nil
}
