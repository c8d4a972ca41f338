package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/ytconvert/pkg/engine"
)

// EnvPrefix is prepended to every environment override, e.g.
// CONVERTD_SERVER_PORT or CONVERTD_HISTORY_DSN
const EnvPrefix = "CONVERTD"

// Config is the effective convertd configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	TLS       TLSConfig       `mapstructure:"tls"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	History   HistoryConfig   `mapstructure:"history"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type TLSConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Cert              string `mapstructure:"cert"`
	Key               string `mapstructure:"key"`
	CA                string `mapstructure:"ca"`
	RequireClientCert bool   `mapstructure:"require_client_cert"`
}

type AuthConfig struct {
	APIKey     string `mapstructure:"api_key"`
	APIKeyHash string `mapstructure:"api_key_hash"`
}

type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	RPS     float64       `mapstructure:"rps"`
	Burst   int           `mapstructure:"burst"`
	IdleTTL time.Duration `mapstructure:"idle_ttl"`

	// TrustProxy keys clients on X-Forwarded-For
	TrustProxy bool `mapstructure:"trust_proxy"`
}

type EngineConfig struct {
	Binary        string `mapstructure:"binary"`
	Referer       string `mapstructure:"referer"`
	UserAgent     string `mapstructure:"user_agent"`
	StrictQuality bool   `mapstructure:"strict_quality"`
}

type ProbeConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

type HistoryConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxRecords      int           `mapstructure:"max_records"`
}

// MetricsConfig: Port 0 serves /metrics on the API listener
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Insecure    bool   `mapstructure:"insecure"`
}

// LogConfig: File also writes to /var/log/convertd/server/ (./logs fallback)
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   bool   `mapstructure:"file"`
}

// SetDefaults registers every key so env overrides resolve even when no
// config file mentions them
func SetDefaults(v *viper.Viper) {
	defaults := engine.DefaultOptions()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("tls.enabled", false)
	v.SetDefault("tls.cert", "certs/convertd.crt")
	v.SetDefault("tls.key", "certs/convertd.key")
	v.SetDefault("tls.ca", "")
	v.SetDefault("tls.require_client_cert", false)

	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.api_key_hash", "")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.rps", 2.0)
	v.SetDefault("ratelimit.burst", 5)
	v.SetDefault("ratelimit.idle_ttl", "10m")
	v.SetDefault("ratelimit.trust_proxy", false)

	v.SetDefault("engine.binary", defaults.Binary)
	v.SetDefault("engine.referer", defaults.Referer)
	v.SetDefault("engine.user_agent", defaults.UserAgent)
	v.SetDefault("engine.strict_quality", false)

	v.SetDefault("probe.enabled", true)
	v.SetDefault("probe.timeout", "15s")
	v.SetDefault("probe.retries", 1)

	v.SetDefault("history.driver", "memory")
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.retention", "168h")
	v.SetDefault("history.cleanup_interval", "1h")
	v.SetDefault("history.max_records", 1000)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "convertd")
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", false)
}

// New returns a viper instance with defaults and env bindings applied
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile loads path into v. An empty path searches $HOME/.convertd and
// /etc/convertd for config.yaml; not finding one there is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".convertd"))
		}
		v.AddConfigPath("/etc/convertd")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load decodes and validates the effective configuration
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and cross-field constraints
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		problems = append(problems, "server.max_body_bytes must be positive")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 {
		problems = append(problems, "server timeouts must not be negative")
	}
	if c.TLS.Enabled && (c.TLS.Cert == "" || c.TLS.Key == "") {
		problems = append(problems, "tls.cert and tls.key are required when tls is enabled")
	}
	if c.TLS.RequireClientCert && c.TLS.CA == "" {
		problems = append(problems, "tls.ca is required when tls.require_client_cert is set")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		problems = append(problems, "ratelimit.rps and ratelimit.burst must be positive")
	}
	if strings.TrimSpace(c.Engine.Binary) == "" {
		problems = append(problems, "engine.binary must not be empty")
	}
	if c.Probe.Timeout <= 0 {
		problems = append(problems, "probe.timeout must be positive")
	}
	if c.Probe.Retries < 0 {
		problems = append(problems, "probe.retries must not be negative")
	}
	switch strings.ToLower(c.History.Driver) {
	case "", "memory", "sqlite", "sqlite3":
	case "postgres", "postgresql":
		if c.History.DSN == "" {
			problems = append(problems, "history.dsn is required for postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("history.driver %q not supported", c.History.Driver))
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		problems = append(problems, fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
	}
	if c.Metrics.Port != 0 && c.Metrics.Port == c.Server.Port {
		problems = append(problems, "metrics.port must differ from server.port")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Dump writes the effective settings as YAML with secrets redacted
func Dump(v *viper.Viper, w io.Writer) error {
	settings := v.AllSettings()
	for _, section := range []string{"auth", "client"} {
		a, ok := settings[section].(map[string]interface{})
		if !ok {
			continue
		}
		for _, k := range []string{"api_key", "api_key_hash"} {
			if s, _ := a[k].(string); s != "" {
				a[k] = "<redacted>"
			}
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(sortedNode(settings))
}

// sortedNode builds a yaml node with keys in stable order
func sortedNode(m map[string]interface{}) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: k}
		var valNode *yaml.Node
		if sub, ok := m[k].(map[string]interface{}); ok {
			valNode = sortedNode(sub)
		} else {
			valNode = &yaml.Node{}
			if err := valNode.Encode(m[k]); err != nil {
				valNode = &yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprint(m[k])}
			}
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node
}
