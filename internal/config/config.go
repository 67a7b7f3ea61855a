// Package config loads runtime settings from defaults, an optional YAML file
// and REGIONS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Debounce DebounceConfig `mapstructure:"debounce"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Tool     ToolConfig     `mapstructure:"tool"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DebounceConfig holds the completion settle window.
type DebounceConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// StoreConfig selects and tunes the annotation record store.
type StoreConfig struct {
	Backend        string   `mapstructure:"backend"` // memory | redis
	LegacyRemoval  bool     `mapstructure:"legacy_removal"`
	IdentityFields []string `mapstructure:"identity_fields"`
	RedrawPasses   int      `mapstructure:"redraw_passes"`

	// EncryptionKey is a base64 AES-256 key for records kept in redis.
	EncryptionKey string   `mapstructure:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// ToolConfig names the drawing tool.
type ToolConfig struct {
	Name string `mapstructure:"name"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SetDefaults registers every key with its default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("debounce.window", 50*time.Millisecond)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.legacy_removal", true)
	v.SetDefault("store.identity_fields", []string{"uid", "annotationUID", "uuid", "id"})
	v.SetDefault("store.redraw_passes", 1)
	v.SetDefault("store.encryption_key", "")
	v.SetDefault("store.fallback_keys", []string{})
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "regions:")
	v.SetDefault("redis.ttl", time.Duration(0))
	v.SetDefault("redis.lock_ttl", 30*time.Second)
	v.SetDefault("tool.name", "FreehandRoi")
	v.SetDefault("metrics.enabled", true)
}

// New returns a viper instance with defaults, the config file and env
// overrides wired. Env var overrides use prefix REGIONS_.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigType("yaml")
	if cfgPath := os.Getenv("REGIONS_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("regions")
	}

	v.SetEnvPrefix("REGIONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if present, and decodes v into a Config.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && v.ConfigFileUsed() != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Store.Backend != "memory" && c.Store.Backend != "redis" {
		return Config{}, fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.EncryptionKey != "" && c.Store.Backend != "redis" {
		return Config{}, errors.New("store.encryption_key requires the redis backend")
	}
	return c, nil
}

// SlogLevel maps Log.Level to a slog level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
