// Package config provides configuration loading for digitaltwin.
//
// Configuration is assembled once at startup from defaults, an optional YAML
// file and environment variables, validated, and then passed by value to the
// components that need it. Nothing in this package keeps global state.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Supported classifier providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// minSecretKeyLen is the minimum HMAC key length accepted for token signing.
const minSecretKeyLen = 16

// Config holds the complete digitaltwin configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Auth          AuthConfig          `koanf:"auth"`
	Classifier    ClassifierConfig    `koanf:"classifier"`
	CORS          CORSConfig          `koanf:"cors"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	Environment     string   `koanf:"environment"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds persistence configuration.
//
// URL is either a postgres:// DSN or a SQLite path/URI.
type DatabaseConfig struct {
	URL          string `koanf:"url"`
	MaxOpenConns int    `koanf:"max_open_conns"`
}

// AuthConfig holds bearer token configuration.
type AuthConfig struct {
	SecretKey Secret   `koanf:"secret_key"`
	TokenTTL  Duration `koanf:"token_ttl"`
}

// ClassifierConfig holds configuration for the generative text service.
type ClassifierConfig struct {
	Provider          string   `koanf:"provider"`
	Model             string   `koanf:"model"`
	APIKey            Secret   `koanf:"api_key"`
	BaseURL           string   `koanf:"base_url"`
	Temperature       float64  `koanf:"temperature"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerMinute int      `koanf:"requests_per_minute"`
}

// CORSConfig holds the browser origin allow-list.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// ObservabilityConfig holds logging and OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"`
	TLS             bool   `koanf:"tls"`
	TLSSkipVerify   bool   `koanf:"tls_skip_verify"`
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
}

// Default returns a configuration populated with defaults only.
// The auth secret key has no default and must be supplied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "development"
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = "file:digitaltwin.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}

	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = Duration(30 * time.Minute)
	}

	if cfg.Classifier.Provider == "" {
		cfg.Classifier.Provider = ProviderGemini
	}
	if cfg.Classifier.Temperature == 0 {
		cfg.Classifier.Temperature = 0.3
	}

	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	cfg.CORS.AllowedOrigins = normalizeOrigins(cfg.CORS.AllowedOrigins)

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "digitaltwin"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}
}

// normalizeOrigins splits comma-joined entries and trims trailing slashes.
func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, entry := range in {
		for _, p := range strings.Split(entry, ",") {
			if o := strings.TrimRight(strings.TrimSpace(p), "/"); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Database URL is empty
//   - Auth secret key is shorter than 16 bytes
//   - Classifier provider is unknown or has no API key
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Database.URL == "" {
		return errors.New("database url is required")
	}

	if len(c.Auth.SecretKey.Value()) < minSecretKeyLen {
		return fmt.Errorf("auth secret key must be at least %d bytes", minSecretKeyLen)
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth token ttl must be positive")
	}

	switch c.Classifier.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown classifier provider %q (want %q or %q)",
			c.Classifier.Provider, ProviderGemini, ProviderOpenAI)
	}
	if !c.Classifier.APIKey.IsSet() {
		return fmt.Errorf("classifier api key required for provider %q", c.Classifier.Provider)
	}
	if c.Classifier.Temperature < 0 || c.Classifier.Temperature > 2 {
		return fmt.Errorf("classifier temperature must be between 0 and 2, got %v", c.Classifier.Temperature)
	}
	if c.Classifier.RequestsPerMinute < 0 {
		return errors.New("classifier requests_per_minute cannot be negative")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	switch c.Observability.Protocol {
	case "grpc", "http/protobuf":
	default:
		return fmt.Errorf("observability protocol must be grpc or http/protobuf, got %q", c.Observability.Protocol)
	}

	return nil
}
