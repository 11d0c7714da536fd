// Package config loads unitledger settings from defaults, an optional YAML
// file, and UNITLEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"unitledger/internal/blob"
	"unitledger/internal/core"
	"unitledger/internal/infra/blob/s3"
	"unitledger/pkg/domain"
)

// EnvPrefix namespaces environment overrides, e.g. UNITLEDGER_STORAGE_DRIVER.
const EnvPrefix = "UNITLEDGER"

// LocalFile is checked in the working directory when no --config is given.
const LocalFile = "unitledger.yaml"

// Config holds every runtime option.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Registry RegistryConfig `mapstructure:"registry"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Events   EventsConfig   `mapstructure:"events"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Log      LogConfig      `mapstructure:"log"`
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	Driver      string        `mapstructure:"driver"` // memory, sqlite, postgres, redis
	SQLitePath  string        `mapstructure:"sqlite_path"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	RedisURL    string        `mapstructure:"redis_url"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"` // 0 disables the read cache
}

// RegistryConfig tunes the registry service.
type RegistryConfig struct {
	StartID   uint32 `mapstructure:"start_id"`
	WalkLimit int    `mapstructure:"walk_limit"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// EventsConfig configures event delivery. No brokers means events are only logged.
type EventsConfig struct {
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

// BlobConfig selects where backups are written.
type BlobConfig struct {
	Driver            string `mapstructure:"driver"` // fs, memory, s3
	FSRoot            string `mapstructure:"fs_root"`
	S3Bucket          string `mapstructure:"s3_bucket"`
	S3Region          string `mapstructure:"s3_region"`
	S3Endpoint        string `mapstructure:"s3_endpoint"`
	S3PathStyle       bool   `mapstructure:"s3_path_style"`
	S3AccessKeyID     string `mapstructure:"s3_access_key_id"`
	S3SecretAccessKey string `mapstructure:"s3_secret_access_key"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{
			Driver:      string(core.StorageMemory),
			SQLitePath:  "unitledger.db",
			RedisPrefix: "unitledger",
		},
		HTTP:   HTTPConfig{Addr: ":8080"},
		Events: EventsConfig{KafkaTopic: "unitledger.events"},
		Blob: BlobConfig{
			Driver: string(blob.DriverFilesystem),
			FSRoot: "./backups",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// SetDefaults registers every key on v so env overrides and Unmarshal see them.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)
	v.SetDefault("storage.redis_url", d.Storage.RedisURL)
	v.SetDefault("storage.redis_prefix", d.Storage.RedisPrefix)
	v.SetDefault("storage.cache_ttl", d.Storage.CacheTTL)
	v.SetDefault("registry.start_id", d.Registry.StartID)
	v.SetDefault("registry.walk_limit", d.Registry.WalkLimit)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("events.kafka_brokers", d.Events.KafkaBrokers)
	v.SetDefault("events.kafka_topic", d.Events.KafkaTopic)
	v.SetDefault("blob.driver", d.Blob.Driver)
	v.SetDefault("blob.fs_root", d.Blob.FSRoot)
	v.SetDefault("blob.s3_bucket", d.Blob.S3Bucket)
	v.SetDefault("blob.s3_region", d.Blob.S3Region)
	v.SetDefault("blob.s3_endpoint", d.Blob.S3Endpoint)
	v.SetDefault("blob.s3_path_style", d.Blob.S3PathStyle)
	v.SetDefault("blob.s3_access_key_id", d.Blob.S3AccessKeyID)
	v.SetDefault("blob.s3_secret_access_key", d.Blob.S3SecretAccessKey)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads configuration into v and decodes it.
// Lookup order when file is empty:
//  1. ./unitledger.yaml
//  2. ~/.config/unitledger/config.yaml
//
// A missing default file is not an error; a missing explicit file is.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case file != "":
		v.SetConfigFile(file)
	case fileExists(LocalFile):
		v.SetConfigFile(LocalFile)
	default:
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "unitledger"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Validate checks driver names and the settings each driver requires.
func (c Config) Validate() error {
	var errs []error
	driver := core.StorageDriver(c.Storage.Driver)
	if !slices.Contains(core.StorageDrivers, driver) {
		errs = append(errs, fmt.Errorf("storage.driver must be one of %v, got %q", core.StorageDrivers, c.Storage.Driver))
	}
	if driver == core.StoragePostgres && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required when storage.driver is \"postgres\""))
	}
	if driver == core.StorageRedis && c.Storage.RedisURL == "" {
		errs = append(errs, errors.New("storage.redis_url is required when storage.driver is \"redis\""))
	}
	if c.Storage.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("storage.cache_ttl must not be negative, got %s", c.Storage.CacheTTL))
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3Bucket == "" {
			errs = append(errs, errors.New("blob.s3_bucket is required when blob.driver is \"s3\""))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver must be \"fs\", \"memory\", or \"s3\", got %q", c.Blob.Driver))
	}
	if len(c.Events.KafkaBrokers) > 0 && c.Events.KafkaTopic == "" {
		errs = append(errs, errors.New("events.kafka_topic is required when brokers are configured"))
	}
	if domain.UnitID(c.Registry.StartID) == domain.MaxUnitID {
		errs = append(errs, errors.New("registry.start_id leaves no identifiers"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format must be \"text\" or \"json\", got %q", f))
	}
	return errors.Join(errs...)
}

// StorageOptions converts the storage section for core.OpenPersistentStore.
func (c Config) StorageOptions() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
		RedisURL:    c.Storage.RedisURL,
		RedisPrefix: c.Storage.RedisPrefix,
		CacheTTL:    c.Storage.CacheTTL,
	}
}

// BlobOptions converts the blob section for blob.Open.
func (c Config) BlobOptions() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: s3.Config{
			Bucket:          c.Blob.S3Bucket,
			Region:          c.Blob.S3Region,
			Endpoint:        c.Blob.S3Endpoint,
			PathStyle:       c.Blob.S3PathStyle,
			AccessKeyID:     c.Blob.S3AccessKeyID,
			SecretAccessKey: c.Blob.S3SecretAccessKey,
		},
	}
}

// NewLogger builds a slog logger writing to w in the configured format.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("log.level must be debug, info, warn, or error, got %q", raw)
	}
	return level, nil
}
