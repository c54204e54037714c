package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (PATTERNFLOW_SERVER_ADDRESS, ...).
const EnvPrefix = "PATTERNFLOW"

// Config holds all configuration for the service and the CLI.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Events    EventsConfig    `mapstructure:"events"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text or json
}

func (g GeneralConfig) Normalize() GeneralConfig {
	g.LogLevel = strings.ToLower(strings.TrimSpace(g.LogLevel))
	if g.Debug {
		g.LogLevel = "debug"
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	g.LogFormat = strings.ToLower(strings.TrimSpace(g.LogFormat))
	if g.LogFormat == "" {
		g.LogFormat = "text"
	}
	return g
}

func (g GeneralConfig) Validate() error {
	switch g.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("general.log_level %q is not one of debug, info, warn, error", g.LogLevel)
	}
	if g.LogFormat != "text" && g.LogFormat != "json" {
		return fmt.Errorf("general.log_format %q is not one of text, json", g.LogFormat)
	}
	return nil
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("server.address required")
	}
	if s.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be > 0")
	}
	return nil
}

// UpstreamConfig points at the hosted upload API. APIKey may be empty at
// startup; requests then fail with a configuration error.
type UpstreamConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	UploadURL string        `mapstructure:"upload_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func (u UpstreamConfig) Validate() error {
	if strings.TrimSpace(u.UploadURL) == "" {
		return fmt.Errorf("upstream.upload_url required")
	}
	return nil
}

// AgentConfig describes the analysis agent invocation.
type AgentConfig struct {
	ChatURL     string        `mapstructure:"chat_url"`
	AgentID     string        `mapstructure:"agent_id"`
	UserID      string        `mapstructure:"user_id"`
	Instruction string        `mapstructure:"instruction"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Retries     int           `mapstructure:"retries"`
}

func (a AgentConfig) Validate() error {
	if strings.TrimSpace(a.ChatURL) == "" {
		return fmt.Errorf("agent.chat_url required")
	}
	if a.Retries < 0 {
		return fmt.Errorf("agent.retries cannot be negative")
	}
	return nil
}

// EventsConfig controls the agent event stream subscription.
type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"` // may contain {session_id}
}

func (e EventsConfig) Validate() error {
	if e.Enabled && strings.TrimSpace(e.URL) == "" {
		return fmt.Errorf("events.url required when events are enabled")
	}
	return nil
}

// ResolverConfig tunes asset id resolution. Zero values mean the built-in defaults.
type ResolverConfig struct {
	KeyNames          []string `mapstructure:"key_names"`
	MinFallbackLength int      `mapstructure:"min_fallback_length"`
	MaxDepth          int      `mapstructure:"max_depth"`
}

func (r ResolverConfig) Normalize() ResolverConfig {
	var keys []string
	for _, k := range r.KeyNames {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	r.KeyNames = keys
	return r
}

func (r ResolverConfig) Validate() error {
	if r.MinFallbackLength < 0 {
		return fmt.Errorf("resolver.min_fallback_length cannot be negative")
	}
	if r.MaxDepth < 0 {
		return fmt.Errorf("resolver.max_depth cannot be negative")
	}
	return nil
}

// StorageConfig selects where session snapshots are cached.
type StorageConfig struct {
	Driver     string        `mapstructure:"driver"` // memory or redis
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	Redis      RedisConfig   `mapstructure:"redis"`
}

func (s StorageConfig) Validate() error {
	switch s.Driver {
	case "memory":
	case "redis":
		return s.Redis.Validate()
	default:
		return fmt.Errorf("storage.driver %q is not one of memory, redis", s.Driver)
	}
	return nil
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

var envPaths = []string{".env", "../.env"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_format", "text")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 180*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(25<<20))
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.upload_url", "https://agent-prod.studio.lyzr.ai/v3/assets/upload")
	v.SetDefault("upstream.timeout", 60*time.Second)

	v.SetDefault("agent.chat_url", "https://agent-prod.studio.lyzr.ai/v3/inference/chat/")
	v.SetDefault("agent.agent_id", "")
	v.SetDefault("agent.user_id", "patternflow@local")
	v.SetDefault("agent.instruction", "")
	v.SetDefault("agent.timeout", 120*time.Second)
	v.SetDefault("agent.retries", 0)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.url", "wss://metrics.studio.lyzr.ai/ws/{session_id}")

	v.SetDefault("resolver.key_names", []string{})
	v.SetDefault("resolver.min_fallback_length", 0)
	v.SetDefault("resolver.max_depth", 0)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.session_ttl", 2*time.Hour)
	v.SetDefault("storage.key_prefix", "patternflow:")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", 5*time.Second)

	v.SetDefault("telemetry.metrics_enabled", true)
}

// LoadConfig reads configuration from path, or from config.{json,yaml} in
// the usual places when path is empty, then applies environment overrides.
// A missing config file is not an error when path is empty.
func LoadConfig(path string) (*Config, error) {
	// .env does not override variables already set in the environment.
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The upload and agent services share one key, commonly exported as LYZR_API_KEY.
	if err := v.BindEnv("upstream.api_key", EnvPrefix+"_UPSTREAM_API_KEY", "LYZR_API_KEY"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.General = cfg.General.Normalize()
	cfg.Resolver = cfg.Resolver.Normalize()
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Upstream.APIKey = strings.TrimSpace(cfg.Upstream.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.General.Validate,
		c.Server.Validate,
		c.Upstream.Validate,
		c.Agent.Validate,
		c.Events.Validate,
		c.Resolver.Validate,
		c.Storage.Validate,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// HasAPIKey reports whether upstream credentials are configured.
func (c *Config) HasAPIKey() bool { return c.Upstream.APIKey != "" }
