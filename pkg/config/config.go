// Package config provides configuration loading for the project manager
// service.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	GitHub        GitHubConfig        `yaml:"github"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// BaseURL is the externally visible URL of this service, used to build
	// the OAuth callback URL GitHub redirects to.
	BaseURL string `yaml:"base_url"`
}

// GitHubConfig holds GitHub App and OAuth configuration.
type GitHubConfig struct {
	// AppID is the numeric GitHub App identifier.
	AppID int64 `yaml:"app_id"`

	// AppSlug is the URL slug of the App, used to build the installation
	// page URL.
	AppSlug string `yaml:"app_slug"`

	// PrivateKey is the App's RSA private key in PEM form, normally
	// injected via ${GITHUB_APP_PRIVATE_KEY}.
	PrivateKey string `yaml:"private_key"`

	// WebhookSecret signs webhook deliveries.
	WebhookSecret string `yaml:"webhook_secret"`

	// ClientID and ClientSecret are the App's OAuth credentials.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// APIBaseURL, OAuthBaseURL and WebBaseURL override the github.com
	// endpoints, for GitHub Enterprise or tests.
	APIBaseURL   string `yaml:"api_base_url,omitempty"`
	OAuthBaseURL string `yaml:"oauth_base_url,omitempty"`
	WebBaseURL   string `yaml:"web_base_url,omitempty"`
}

// SessionsConfig holds session storage configuration.
type SessionsConfig struct {
	// Backend selects the storage substrate: "memory" or "redis".
	Backend string `yaml:"backend"`

	// TTL is the default session lifetime.
	TTL time.Duration `yaml:"ttl"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds the Redis substrate configuration.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix,omitempty"`
}

// RateLimitConfig holds public-endpoint rate limiting configuration.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
	MetricsPort    int  `yaml:"metrics_port"`
}

// Session backend names accepted by SessionsConfig.Backend.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// envVarPattern matches ${VAR_NAME} patterns for environment variable substitution.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load loads configuration from a YAML file with environment variable substitution.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "config.yaml"
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	// Substitute environment variables
	substituted, err := substituteEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("substituting env vars: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply defaults
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
// Lines that are comments (starting with #) are skipped to allow commented optional sections
// in config files without requiring their environment variables to be set.
func substituteEnvVars(content string) (string, error) {
	var missingVars []string
	lines := strings.Split(content, "\n")

	for i, line := range lines {
		// Skip lines that are YAML comments.
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}

		lines[i] = envVarPattern.ReplaceAllStringFunc(line, func(match string) string {
			varName := envVarPattern.FindStringSubmatch(match)[1]
			value := os.Getenv(varName)
			if value == "" {
				missingVars = append(missingVars, varName)
				return match
			}

			return value
		})
	}

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing environment variables: %v", missingVars)
	}

	return strings.Join(lines, "\n"), nil
}

// applyDefaults sets default values for configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	if cfg.GitHub.APIBaseURL == "" {
		cfg.GitHub.APIBaseURL = "https://api.github.com"
	}

	if cfg.GitHub.OAuthBaseURL == "" {
		cfg.GitHub.OAuthBaseURL = "https://github.com"
	}

	if cfg.GitHub.WebBaseURL == "" {
		cfg.GitHub.WebBaseURL = "https://github.com"
	}

	if cfg.Sessions.Backend == "" {
		cfg.Sessions.Backend = SessionBackendMemory
	}

	if cfg.Sessions.TTL == 0 {
		cfg.Sessions.TTL = 30 * time.Minute
	}

	if cfg.Sessions.Redis.Addr == "" {
		cfg.Sessions.Redis.Addr = "localhost:6379"
	}

	if cfg.Sessions.Redis.KeyPrefix == "" {
		cfg.Sessions.Redis.KeyPrefix = "session:"
	}

	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 60
	}

	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 10
	}

	if cfg.Observability.MetricsPort == 0 {
		cfg.Observability.MetricsPort = 9091
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Sessions.Backend != SessionBackendMemory && c.Sessions.Backend != SessionBackendRedis {
		return fmt.Errorf("sessions.backend must be %q or %q, got %q",
			SessionBackendMemory, SessionBackendRedis, c.Sessions.Backend)
	}

	if c.Sessions.TTL < 0 {
		return errors.New("sessions.ttl cannot be negative")
	}

	if (c.GitHub.ClientID == "") != (c.GitHub.ClientSecret == "") {
		return errors.New("github.client_id and github.client_secret must be set together")
	}

	if (c.GitHub.AppID == 0) != (c.GitHub.PrivateKey == "") {
		return errors.New("github.app_id and github.private_key must be set together")
	}

	return nil
}
