package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBackendURL is the tunnel URL the relay starts with. Tunnel URLs rotate,
	// so it is expected to be replaced through POST /update-backend-url.
	DefaultBackendURL = "https://1cfcd564d39b.ngrok-free.app"
	// DefaultUserAgent is sent to the backend so the tunnel provider treats the relay as a browser.
	DefaultUserAgent = "Mozilla/5.0"
)

// ServerConfig holds configuration for the relay server.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	ConfigFile  string `yaml:"-"`

	BackendURL string `yaml:"backend_url"`
	UserAgent  string `yaml:"user_agent"`
	// InsecureSkipVerify disables certificate verification on backend calls.
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	GenerateTimeout    time.Duration `yaml:"generate_timeout"`
	HealthTimeout      time.Duration `yaml:"health_timeout"`
	// GenerateRatePerMinute caps accepted generations; 0 disables the limit.
	GenerateRatePerMinute int `yaml:"generate_rate_per_minute"`

	// DrainTimeout bounds how long shutdown waits for in-flight generations.
	// Negative waits indefinitely, zero exits immediately.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	AllowedOrigins []string `yaml:"allowed_origins"`
	AdminKey       string   `yaml:"admin_key"`
	RedisAddr      string   `yaml:"redis_addr"`
}

// SetDefaults initializes a fresh config with built-in defaults.
func (c *ServerConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 5000
	}
	if c.BackendURL == "" {
		c.BackendURL = DefaultBackendURL
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	c.InsecureSkipVerify = true
	if c.GenerateTimeout == 0 {
		c.GenerateTimeout = 360 * time.Second
	}
	if c.HealthTimeout == 0 {
		c.HealthTimeout = 10 * time.Second
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 5 * time.Minute
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{"*"}
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("relay.yaml")
	}
}

// MetricsOnMainPort reports whether /metrics is served by the main listener.
func (c ServerConfig) MetricsOnMainPort() bool {
	return c.MetricsAddr == "" || c.MetricsAddr == fmt.Sprintf(":%d", c.Port)
}

// MetricsListenAddr returns the address of the metrics listener.
func (c ServerConfig) MetricsListenAddr() string {
	if c.MetricsAddr == "" {
		return fmt.Sprintf(":%d", c.Port)
	}
	return c.MetricsAddr
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *ServerConfig) ApplyEnv() {
	if v := GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := GetEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := GetEnv("METRICS_PORT", ""); v != "" {
		c.MetricsAddr = metricsAddr(v)
	}
	if v := GetEnv("BACKEND_URL", ""); v != "" {
		c.BackendURL = v
	}
	if v := GetEnv("USER_AGENT", ""); v != "" {
		c.UserAgent = v
	}
	if v := GetEnv("INSECURE_SKIP_VERIFY", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.InsecureSkipVerify = b
		}
	}
	if v := GetEnv("GENERATE_TIMEOUT", ""); v != "" {
		if d, ok := parseTimeout(v); ok {
			c.GenerateTimeout = d
		}
	}
	if v := GetEnv("HEALTH_TIMEOUT", ""); v != "" {
		if d, ok := parseTimeout(v); ok {
			c.HealthTimeout = d
		}
	}
	if v := GetEnv("GENERATE_RATE_PER_MINUTE", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GenerateRatePerMinute = n
		}
	}
	if v := GetEnv("DRAIN_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DrainTimeout = d
		}
	}
	if v := GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := GetEnv("ADMIN_KEY", ""); v != "" {
		c.AdminKey = v
	}
	if v := GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
}

// BindFlagsFromCurrent binds command line flags using the current config values as defaults.
func (c *ServerConfig) BindFlagsFromCurrent() {
	c.BindFlagSet(flag.CommandLine)
}

// BindFlagSet binds the config to fs using the current values as defaults.
func (c *ServerConfig) BindFlagSet(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "relay config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port")
	fs.Func("metrics-port", "Prometheus metrics listen address or port; defaults to the value of --port", func(v string) error {
		c.MetricsAddr = metricsAddr(v)
		return nil
	})
	fs.StringVar(&c.BackendURL, "backend-url", c.BackendURL, "initial base URL of the image generation backend")
	fs.StringVar(&c.UserAgent, "user-agent", c.UserAgent, "User-Agent header sent to the backend")
	fs.BoolVar(&c.InsecureSkipVerify, "insecure-skip-verify", c.InsecureSkipVerify, "skip TLS certificate verification for backend calls (tunnel endpoints)")
	fs.DurationVar(&c.GenerateTimeout, "generate-timeout", c.GenerateTimeout, "timeout for a single generation call to the backend")
	fs.DurationVar(&c.HealthTimeout, "health-timeout", c.HealthTimeout, "timeout for a backend health probe")
	fs.IntVar(&c.GenerateRatePerMinute, "generate-rate", c.GenerateRatePerMinute, "maximum generation requests accepted per minute (0 for unlimited)")
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight generations on shutdown (-1 to wait indefinitely, 0 to exit immediately)")
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	fs.StringVar(&c.AdminKey, "admin-key", c.AdminKey, "bearer key required to update the backend URL; leave empty to allow anyone")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for sharing the backend URL between replicas")
}

// LoadFile populates the config from a YAML file.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// parseTimeout accepts either a Go duration ("90s") or a number of seconds ("90").
func parseTimeout(v string) (time.Duration, bool) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), true
	}
	return 0, false
}

func metricsAddr(v string) string {
	if strings.Contains(v, ":") {
		return v
	}
	return ":" + v
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
