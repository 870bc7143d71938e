package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/snaplog/snaplog/internal/hash"
)

const (
	EngineBolt     = "bolt"
	EnginePebble   = "pebble"
	EnginePostgres = "postgres"
)

type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Codec   CodecConfig   `mapstructure:"codec"`
	Hash    HashConfig    `mapstructure:"hash"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Alerts  AlertsConfig  `mapstructure:"alerts"`
}

type StorageConfig struct {
	Engine string `mapstructure:"engine"`
	Path   string `mapstructure:"path"`
	Fsync  string `mapstructure:"fsync"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

type CodecConfig struct {
	Format      string `mapstructure:"format"`
	Compression string `mapstructure:"compression"`
}

type HashConfig struct {
	Algorithm string `mapstructure:"algorithm"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type AlertsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SlackWebhook string `mapstructure:"slack_webhook"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvPrefix("snaplog")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if expanded := os.ExpandEnv(val); expanded != val {
			v.Set(key, expanded)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Storage.Engine == "" {
		c.Storage.Engine = EngineBolt
	}

	switch c.Storage.Engine {
	case EngineBolt, EnginePebble:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required")
		}
		if c.Storage.Fsync == "" {
			c.Storage.Fsync = "interval"
		}
		if !oneOf(c.Storage.Fsync, "always", "interval", "never") {
			return fmt.Errorf("invalid storage.fsync: %s (valid options: always, interval, never)", c.Storage.Fsync)
		}
	case EnginePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required")
		}
		if c.Storage.Table == "" {
			c.Storage.Table = "snaplog_kv"
		}
	default:
		return fmt.Errorf("invalid storage engine: %s (valid options: bolt, pebble, postgres)", c.Storage.Engine)
	}

	if c.Codec.Format == "" {
		c.Codec.Format = "cbor"
	}
	if !oneOf(c.Codec.Format, "json", "cbor") {
		return fmt.Errorf("invalid codec format: %s (valid options: json, cbor)", c.Codec.Format)
	}

	if c.Codec.Compression == "" {
		c.Codec.Compression = "none"
	}
	if !oneOf(c.Codec.Compression, "none", "snappy", "lz4", "zstd") {
		return fmt.Errorf("invalid codec compression: %s (valid options: none, snappy, lz4, zstd)", c.Codec.Compression)
	}

	// Set default hash algorithm if not specified
	if c.Hash.Algorithm == "" {
		c.Hash.Algorithm = hash.DefaultAlgorithm
	}
	if !hash.ValidAlgorithm(c.Hash.Algorithm) {
		return fmt.Errorf("invalid hash algorithm: %s (valid options: %s)",
			c.Hash.Algorithm, strings.Join(hash.Algorithms, ", "))
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if !oneOf(c.Log.Level, "debug", "info", "warn", "error") {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if !oneOf(c.Log.Format, "text", "json") {
		return fmt.Errorf("invalid log format: %s (valid options: text, json)", c.Log.Format)
	}

	if c.Alerts.Enabled && c.Alerts.SlackWebhook == "" {
		return fmt.Errorf("alerts.slack_webhook is required when alerts are enabled")
	}

	return nil
}

// NewLogger builds a slog.Logger writing to w with the configured level and format.
func (l *LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch l.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
