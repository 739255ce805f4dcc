// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// SessionCookieName is the platform's session cookie, auto-prefixed when the
// credential is supplied as a bare token.
const SessionCookieName = ".ROBLOSECURITY"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Upstream  UpstreamConfig
	Pipeline  PipelineConfig
	RedisAddr string `envconfig:"REDIS_ADDR" default:""`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name    string `envconfig:"APP_NAME" default:"asset-aggregator"`
	Version string `envconfig:"APP_VERSION" default:"1.0.0"`
	Debug   bool   `envconfig:"APP_DEBUG" default:"false"`
}

// UpstreamConfig holds credentials and routing for upstream calls.
// An empty GatewayURL selects direct mode: the aggregator calls platform
// hosts itself, attaching both credentials on every request.
type UpstreamConfig struct {
	GatewayURL string `envconfig:"GATEWAY_URL" default:""`
	APIKey     string `envconfig:"ROBLOX_API_KEY" default:""`
	Cookie     string `envconfig:"ROBLOX_COOKIE" default:""`
}

// PipelineConfig holds default aggregation bounds; per-request query
// parameters override them within the same clamps.
type PipelineConfig struct {
	Concurrency       int `envconfig:"AGG_CONCURRENCY" default:"5"`
	PageSize          int `envconfig:"AGG_PAGE_SIZE" default:"100"`
	MaxPlaces         int `envconfig:"AGG_MAX_PLACES" default:"50"`
	MaxUniversePages  int `envconfig:"AGG_MAX_UNIVERSE_PAGES" default:"5"`
	MaxInventoryPages int `envconfig:"AGG_MAX_INVENTORY_PAGES" default:"5"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UseGateway reports whether calls route through the forwarding gateway.
func (u *UpstreamConfig) UseGateway() bool {
	return u.GatewayURL != ""
}

// NormalizedCookie returns the session cookie in "NAME=value" form: quotes
// and whitespace stripped, the cookie name prefixed when the credential was
// supplied as a bare token. Empty input stays empty.
func (u *UpstreamConfig) NormalizedCookie() string {
	return NormalizeCookie(u.Cookie)
}

// NormalizeCookie implements the credential normalization rule.
func NormalizeCookie(raw string) string {
	c := strings.TrimSpace(raw)
	c = strings.Trim(c, `"'`)
	c = strings.TrimSpace(c)
	if c == "" {
		return ""
	}
	if !strings.HasPrefix(c, SessionCookieName+"=") {
		c = SessionCookieName + "=" + c
	}
	return c
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
