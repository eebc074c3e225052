// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	toml "github.com/pelletier/go-toml/v2"

	"rproxy-go/internal/cors"
	"rproxy-go/internal/model"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/rproxy/config.toml",
	"configs/config.toml",
}

// reservedRoutes are served by the proxy itself and never forwarded.
var reservedRoutes = []string{"/healthz", "/_proxy"}

const (
	defaultTimeoutSeconds = 30
	defaultMaxRetries     = 3
)

// CLI holds command-line arguments parsed by Kong.
// Environment names match the variables the proxy has always been deployed with.
type CLI struct {
	Version kong.VersionFlag `kong:"short='v',help='Print version and exit.'"`

	Config              string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host                string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port                int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Timeout             int    `kong:"help='Per-attempt upstream timeout in seconds (overrides config).',env='TIMEOUT'"`
	Retries             *int   `kong:"help='Upstream attempts per request (overrides config). 0 still makes one attempt.',env='RETRIES'"`
	Key                 string `kong:"help='Shared secret expected in the proxykey header (overrides config).',env='KEY'"`
	StripPrefixSegments int    `kong:"name='strip-prefix-segments',help='Leading path segments to drop before the subdomain (overrides config).',env='STRIP_PREFIX_SEGMENTS'"`
	LogLevel            string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`

	CORSAllowOrigin      string `kong:"name='cors-allow-origin',help='Access-Control-Allow-Origin value.',env='CORS_ALLOW_ORIGIN'"`
	CORSAllowCredentials bool   `kong:"name='cors-allow-credentials',help='Send Access-Control-Allow-Credentials: true.',env='CORS_ALLOW_CREDENTIALS'"`
	CORSAllowMethods     string `kong:"name='cors-allow-methods',help='Access-Control-Allow-Methods value.',env='CORS_ALLOW_METHODS'"`
	CORSAllowHeaders     string `kong:"name='cors-allow-headers',help='Default Access-Control-Allow-Headers value.',env='CORS_ALLOW_HEADERS'"`
	CORSExposeHeaders    string `kong:"name='cors-expose-headers',help='Access-Control-Expose-Headers value.',env='CORS_EXPOSE_HEADERS'"`
	CORSMaxAge           int    `kong:"name='cors-max-age',help='Access-Control-Max-Age in seconds.',env='CORS_MAX_AGE'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Proxy   ProxyConfig   `toml:"proxy"`
	CORS    CORSConfig    `toml:"cors"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	filePath string // resolved config file path (unexported)

	retriesSet bool // max_retries came from the CLI or env, so an explicit 0 is kept
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (3000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ProxyConfig holds forwarding settings.
type ProxyConfig struct {
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	MaxRetries          int    `toml:"max_retries"`
	SharedSecret        string `toml:"shared_secret"`
	StripPrefixSegments int    `toml:"strip_prefix_segments"`
	// DetectDispatchPrefix is a pointer so an explicit false survives defaults.
	DetectDispatchPrefix *bool `toml:"detect_dispatch_prefix"`
	IdleConnections      int   `toml:"idle_connections"`
}

// CORSConfig holds the cross-origin response policy.
type CORSConfig struct {
	AllowOrigin      string `toml:"allow_origin"`
	AllowCredentials bool   `toml:"allow_credentials"`
	AllowMethods     string `toml:"allow_methods"`
	AllowHeaders     string `toml:"allow_headers"`
	ExposeHeaders    string `toml:"expose_headers"`
	MaxAgeSeconds    int    `toml:"max_age_seconds"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// An explicit path (via --config or CONFIG_PATH) must exist. Otherwise it
// searches /etc/rproxy/config.toml then configs/config.toml, and runs on
// defaults plus CLI/env values when neither exists.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Timeout != 0 {
		c.Proxy.TimeoutSeconds = cli.Timeout
	}
	if cli.Retries != nil {
		c.Proxy.MaxRetries = *cli.Retries
		c.retriesSet = true
	}
	if cli.Key != "" {
		c.Proxy.SharedSecret = cli.Key
	}
	if cli.StripPrefixSegments != 0 {
		c.Proxy.StripPrefixSegments = cli.StripPrefixSegments
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.CORSAllowOrigin != "" {
		c.CORS.AllowOrigin = cli.CORSAllowOrigin
	}
	if cli.CORSAllowCredentials {
		c.CORS.AllowCredentials = true
	}
	if cli.CORSAllowMethods != "" {
		c.CORS.AllowMethods = cli.CORSAllowMethods
	}
	if cli.CORSAllowHeaders != "" {
		c.CORS.AllowHeaders = cli.CORSAllowHeaders
	}
	if cli.CORSExposeHeaders != "" {
		c.CORS.ExposeHeaders = cli.CORSExposeHeaders
	}
	if cli.CORSMaxAge != 0 {
		c.CORS.MaxAgeSeconds = cli.CORSMaxAge
	}
}

func (c *Config) validate() error {
	if c.Proxy.SharedSecret == "CHANGE_ME" {
		return fmt.Errorf("proxy.shared_secret contains placeholder value; set a real secret or leave empty to disable the proxykey check")
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}
	if c.Proxy.TimeoutSeconds < 0 {
		return fmt.Errorf("proxy.timeout_seconds must be non-negative; got %d", c.Proxy.TimeoutSeconds)
	}
	if c.Proxy.MaxRetries < 0 {
		return fmt.Errorf("proxy.max_retries must be non-negative; got %d", c.Proxy.MaxRetries)
	}
	if c.Proxy.StripPrefixSegments < 0 {
		return fmt.Errorf("proxy.strip_prefix_segments must be non-negative; got %d", c.Proxy.StripPrefixSegments)
	}
	if c.Proxy.IdleConnections < 0 {
		return fmt.Errorf("proxy.idle_connections must be non-negative; got %d", c.Proxy.IdleConnections)
	}
	if c.CORS.MaxAgeSeconds < 0 {
		return fmt.Errorf("cors.max_age_seconds must be non-negative; got %d", c.CORS.MaxAgeSeconds)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
		// Two or more segments form a valid proxy target.
		if strings.Contains(strings.Trim(p, "/"), "/") {
			return fmt.Errorf("metrics.path %q conflicts with proxied paths; use a single segment", p)
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, TimeoutSeconds, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting
// max_retries=0 in the config file therefore results in the default (3).
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Proxy.TimeoutSeconds == 0 {
		c.Proxy.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Proxy.MaxRetries == 0 && !c.retriesSet {
		c.Proxy.MaxRetries = defaultMaxRetries
	}
	if c.Proxy.DetectDispatchPrefix == nil {
		detect := true
		c.Proxy.DetectDispatchPrefix = &detect
	}
	if c.Proxy.IdleConnections == 0 {
		c.Proxy.IdleConnections = 100
	}
	if c.CORS.AllowMethods == "" {
		c.CORS.AllowMethods = cors.DefaultAllowMethods
	}
	if c.CORS.AllowHeaders == "" {
		c.CORS.AllowHeaders = cors.DefaultAllowHeaders
	}
	if c.CORS.ExposeHeaders == "" {
		c.CORS.ExposeHeaders = cors.DefaultExposeHeaders
	}
	if c.CORS.MaxAgeSeconds == 0 {
		c.CORS.MaxAgeSeconds = cors.DefaultMaxAgeSeconds
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Handler assembles the forwarding pipeline configuration.
func (c *Config) Handler() model.HandlerConfig {
	return model.HandlerConfig{
		Timeout:              time.Duration(c.Proxy.TimeoutSeconds) * time.Second,
		MaxRetries:           c.Proxy.MaxRetries,
		SharedSecret:         c.Proxy.SharedSecret,
		StripPrefixSegments:  c.Proxy.StripPrefixSegments,
		DetectDispatchPrefix: c.Proxy.DetectDispatchPrefix != nil && *c.Proxy.DetectDispatchPrefix,
		CORS: cors.Policy{
			AllowOrigin:      c.CORS.AllowOrigin,
			AllowCredentials: c.CORS.AllowCredentials,
			AllowMethods:     c.CORS.AllowMethods,
			AllowHeaders:     c.CORS.AllowHeaders,
			ExposeHeaders:    c.CORS.ExposeHeaders,
			MaxAgeSeconds:    c.CORS.MaxAgeSeconds,
		},
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or
// others. The file may carry the shared secret.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
