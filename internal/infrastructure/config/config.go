package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `toml:"server" yaml:"server" json:"server"`
	Logging    LogConfig        `toml:"logging" yaml:"logging" json:"logging"`
	RateLimit  RateLimitConfig  `toml:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
	Fetch      FetchConfig      `toml:"fetch" yaml:"fetch" json:"fetch"`
	Render     RenderConfig     `toml:"render" yaml:"render" json:"render"`
	Navigation NavigationConfig `toml:"navigation" yaml:"navigation" json:"navigation"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string   `envconfig:"PORT" toml:"port" yaml:"port" json:"port"`
	Host            string   `envconfig:"HOST" toml:"host" yaml:"host" json:"host"`
	ShutdownTimeout Duration `envconfig:"SHUTDOWN_TIMEOUT" toml:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" toml:"level" yaml:"level" json:"level"`
	Development bool   `envconfig:"LOG_DEV" toml:"development" yaml:"development" json:"development"`
}

// RateLimitConfig holds per-IP rate limiting for the control API.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" toml:"rps" yaml:"rps" json:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" toml:"burst" yaml:"burst" json:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" toml:"enabled" yaml:"enabled" json:"enabled"`
}

// FetchConfig configures the upstream fetch client.
type FetchConfig struct {
	Timeout      Duration `envconfig:"FETCH_TIMEOUT" toml:"timeout" yaml:"timeout" json:"timeout"`
	Retries      int      `envconfig:"FETCH_RETRIES" toml:"retries" yaml:"retries" json:"retries"`
	MaxRedirects int      `envconfig:"FETCH_MAX_REDIRECTS" toml:"max_redirects" yaml:"max_redirects" json:"max_redirects"`
	MaxBodyBytes int64    `envconfig:"FETCH_MAX_BODY_BYTES" toml:"max_body_bytes" yaml:"max_body_bytes" json:"max_body_bytes"`
	UserAgent    string   `envconfig:"FETCH_USER_AGENT" toml:"user_agent" yaml:"user_agent" json:"user_agent"`
	RateLimit    float64  `envconfig:"FETCH_RATE_LIMIT" toml:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RenderConfig configures the render host's document registry.
type RenderConfig struct {
	ReleaseDelay     Duration `envconfig:"RENDER_RELEASE_DELAY" toml:"release_delay" yaml:"release_delay" json:"release_delay"`
	MaxDocuments     int      `envconfig:"RENDER_MAX_DOCUMENTS" toml:"max_documents" yaml:"max_documents" json:"max_documents"`
	MaxDocumentBytes int      `envconfig:"RENDER_MAX_DOCUMENT_BYTES" toml:"max_document_bytes" yaml:"max_document_bytes" json:"max_document_bytes"`
}

// NavigationConfig configures the controller and its external fallback.
type NavigationConfig struct {
	StartURL         string   `envconfig:"START_URL" toml:"start_url" yaml:"start_url" json:"start_url"`
	OpenExternal     bool     `envconfig:"OPEN_EXTERNAL" toml:"open_external" yaml:"open_external" json:"open_external"`
	ExternalPatterns []string `envconfig:"EXTERNAL_PATTERNS" toml:"external_patterns" yaml:"external_patterns" json:"external_patterns"`
}

// Load builds configuration from defaults overlaid with environment variables.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile builds configuration from defaults, then the file at path (if
// non-empty), then environment variables. Fields absent from the file or the
// environment keep their previous value.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Host:            "127.0.0.1",
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
		Fetch: FetchConfig{
			Timeout:      Duration(30 * time.Second),
			Retries:      2,
			MaxRedirects: 10,
			MaxBodyBytes: 10 << 20,
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		},
		Render: RenderConfig{
			ReleaseDelay:     Duration(5 * time.Second),
			MaxDocuments:     64,
			MaxDocumentBytes: 16 << 20,
		},
		Navigation: NavigationConfig{
			OpenExternal:     true,
			ExternalPatterns: []string{"**/*.pdf", "**/*.zip", "**/*.exe", "**/*.dmg"},
		},
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port == "":
		return fmt.Errorf("server port is required")
	case c.Fetch.MaxBodyBytes <= 0:
		return fmt.Errorf("fetch max body bytes must be positive")
	case c.Fetch.Retries < 0:
		return fmt.Errorf("fetch retries must not be negative")
	case c.Render.MaxDocuments <= 0:
		return fmt.Errorf("render max documents must be positive")
	case c.Render.ReleaseDelay < 0:
		return fmt.Errorf("render release delay must not be negative")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// decodeFile overlays the file at path onto cfg, picking the codec by extension.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = sonic.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
