package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitledger/internal/blob"
	"unitledger/internal/core"
)

// isolate moves the test into an empty directory with an empty home so no
// stray config files are picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", filepath.Join(dir, "home"))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	defaults := Defaults()
	assert.Equal(t, defaults.Storage, cfg.Storage)
	assert.Equal(t, defaults.HTTP, cfg.HTTP)
	assert.Equal(t, defaults.Blob, cfg.Blob)
	assert.Equal(t, defaults.Log, cfg.Log)
	assert.Empty(t, cfg.Events.KafkaBrokers)
	assert.Equal(t, core.StorageMemory, cfg.StorageOptions().Driver)
	assert.Equal(t, blob.DriverFilesystem, cfg.BlobOptions().Driver)
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	content := `storage:
  driver: sqlite
  sqlite_path: /var/lib/unitledger/ledger.db
  cache_ttl: 30s
registry:
  start_id: 100
events:
  kafka_brokers: ["k1:9092", "k2:9092"]
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/unitledger/ledger.db", cfg.StorageOptions().SQLitePath)
	assert.Equal(t, 30*time.Second, cfg.Storage.CacheTTL)
	assert.Equal(t, uint32(100), cfg.Registry.StartID)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, "unitledger.events", cfg.Events.KafkaTopic)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	dir := isolate(t)
	_, err := Load(viper.New(), filepath.Join(dir, "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_LocalFileThenHome(t *testing.T) {
	dir := isolate(t)
	homeCfg := filepath.Join(dir, "home", ".config", "unitledger")
	require.NoError(t, os.MkdirAll(homeCfg, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(homeCfg, "config.yaml"), []byte("http:\n  addr: \":9000\"\n"), 0o600))

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)

	require.NoError(t, os.WriteFile(LocalFile, []byte("http:\n  addr: \":7000\"\n"), 0o600))
	cfg, err = Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("UNITLEDGER_STORAGE_DRIVER", "redis")
	t.Setenv("UNITLEDGER_STORAGE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("UNITLEDGER_EVENTS_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("UNITLEDGER_BLOB_DRIVER", "s3")
	t.Setenv("UNITLEDGER_BLOB_S3_BUCKET", "ledger-backups")
	t.Setenv("UNITLEDGER_BLOB_S3_PATH_STYLE", "true")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, core.StorageRedis, cfg.StorageOptions().Driver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Storage.RedisURL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Events.KafkaBrokers)
	opts := cfg.BlobOptions()
	assert.Equal(t, blob.DriverS3, opts.Driver)
	assert.Equal(t, "ledger-backups", opts.S3.Bucket)
	assert.True(t, opts.S3.PathStyle)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown storage", func(c *Config) { c.Storage.Driver = "mysql" }, "storage.driver"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.postgres_dsn"},
		{"redis without url", func(c *Config) { c.Storage.Driver = "redis" }, "storage.redis_url"},
		{"negative ttl", func(c *Config) { c.Storage.CacheTTL = -time.Second }, "storage.cache_ttl"},
		{"unknown blob", func(c *Config) { c.Blob.Driver = "tape" }, "blob.driver"},
		{"s3 without bucket", func(c *Config) { c.Blob.Driver = "s3" }, "blob.s3_bucket"},
		{"brokers without topic", func(c *Config) {
			c.Events.KafkaBrokers = []string{"k:9092"}
			c.Events.KafkaTopic = ""
		}, "events.kafka_topic"},
		{"exhausted start id", func(c *Config) { c.Registry.StartID = ^uint32(0) }, "registry.start_id"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	require.NoError(t, Defaults().Validate())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_InvalidFileIsRejected(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: mysql\n"), 0o600))
	_, err := Load(viper.New(), path)
	require.ErrorContains(t, err, "storage.driver")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "unit_id", 7)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"unit_id":7`)

	_, err = LogConfig{Level: "nope"}.NewLogger(&buf)
	require.Error(t, err)
}
