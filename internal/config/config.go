// Package config loads the flowexec runtime configuration from a config
// file, FLOWEXEC_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// StoreType names a snapshot repository implementation.
type StoreType string

const (
	StoreMemory   StoreType = "memory"
	StoreSQLite   StoreType = "sqlite"
	StorePostgres StoreType = "postgres"
	StoreRedis    StoreType = "redis"
)

// EnvPrefix prefixes environment overrides, e.g. FLOWEXEC_STORE_TYPE.
const EnvPrefix = "FLOWEXEC"

type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Queue  QueueConfig  `mapstructure:"queue"`
	Engine EngineConfig `mapstructure:"engine"`
	Log    LogConfig    `mapstructure:"log"`
	HTTP   HTTPConfig   `mapstructure:"http"`
}

type StoreConfig struct {
	Type StoreType `mapstructure:"type" validate:"required,oneof=memory sqlite postgres redis"`
	// DSN is the sqlite file or postgres connection string.
	DSN          string        `mapstructure:"dsn" validate:"required_if=Type sqlite,required_if=Type postgres"`
	RedisAddr    string        `mapstructure:"redis-addr" validate:"required_if=Type redis"`
	Prefix       string        `mapstructure:"prefix"`
	TTL          time.Duration `mapstructure:"ttl" validate:"gte=0"`
	MaxSnapshots int           `mapstructure:"max-snapshots" validate:"gte=0"`
	Codec        string        `mapstructure:"codec" validate:"oneof=gob msgpack"`
	Compression  string        `mapstructure:"compression" validate:"oneof=none gzip zstd"`
}

// QueueConfig selects the task queue used for deferred delivery. An empty
// type uses the store's backend, or memory for the memory store.
type QueueConfig struct {
	Type        StoreType     `mapstructure:"type" validate:"omitempty,oneof=memory sqlite postgres redis"`
	Concurrency int           `mapstructure:"concurrency" validate:"gte=1"`
	MaxAttempts int           `mapstructure:"max-attempts" validate:"gte=0"`
	Backoff     time.Duration `mapstructure:"backoff" validate:"gte=0"`
}

type EngineConfig struct {
	MaxSteps              int           `mapstructure:"max-steps" validate:"gte=0"`
	AlwaysGenerateNewKey  bool          `mapstructure:"always-generate-new-key"`
	AlwaysRedirectOnPause bool          `mapstructure:"always-redirect-on-pause"`
	LockTimeout           time.Duration `mapstructure:"lock-timeout" validate:"gte=0"`
	LeaseTTL              time.Duration `mapstructure:"lease-ttl" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type HTTPConfig struct {
	Addr   string `mapstructure:"addr" validate:"required"`
	Prefix string `mapstructure:"prefix"`
}

var defaults = map[string]any{
	"store.type":                      string(StoreSQLite),
	"store.dsn":                       "flowexec.db",
	"store.redis-addr":                "localhost:6379",
	"store.prefix":                    "flowexec:",
	"store.ttl":                       24 * time.Hour,
	"store.max-snapshots":             5,
	"store.codec":                     "gob",
	"store.compression":               "none",
	"queue.type":                      "",
	"queue.concurrency":               2,
	"queue.max-attempts":              5,
	"queue.backoff":                   50 * time.Millisecond,
	"engine.max-steps":                1000,
	"engine.always-generate-new-key":  false,
	"engine.always-redirect-on-pause": false,
	"engine.lock-timeout":             5 * time.Second,
	"engine.lease-ttl":                30 * time.Second,
	"log.level":                       "info",
	"log.format":                      "text",
	"http.addr":                       ":8080",
	"http.prefix":                     "",
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"store":         "store.type",
	"dsn":           "store.dsn",
	"redis-addr":    "store.redis-addr",
	"codec":         "store.codec",
	"compression":   "store.compression",
	"max-snapshots": "store.max-snapshots",
	"queue":         "queue.type",
	"workers":       "queue.concurrency",
	"max-steps":     "engine.max-steps",
	"new-key":       "engine.always-generate-new-key",
	"redirect":      "engine.always-redirect-on-pause",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"addr":          "http.addr",
}

// New returns a viper instance with defaults and environment overrides.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config-file", "", "Path to config file.")
	fs.String("store", string(StoreSQLite), "snapshot store: memory, sqlite, postgres or redis")
	fs.String("dsn", "flowexec.db", "sqlite file or postgres connection string")
	fs.String("redis-addr", "localhost:6379", "redis host:port")
	fs.String("codec", "gob", "snapshot codec: gob or msgpack")
	fs.String("compression", "none", "snapshot compression: none, gzip or zstd")
	fs.Int("max-snapshots", 5, "snapshots kept per execution")
	fs.String("queue", "", "task queue: memory, sqlite, postgres or redis; defaults to the store's backend")
	fs.Int("workers", 2, "goroutines delivering queued tasks")
	fs.Int("max-steps", 1000, "step limit per request, 0 disables")
	fs.Bool("new-key", false, "generate a new snapshot key on every pause")
	fs.Bool("redirect", false, "always redirect on pause")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "text", "log format: text or json")
	fs.String("addr", ":8080", "http listen address")
}

// BindFlags binds the flags registered by RegisterFlags to their config
// keys. Flags missing from fs are skipped.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the optional config file, unmarshals and validates the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", file, err)
			}
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}
