package app

import (
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoad(t *testing.T) (*Config, error) {
	t.Helper()
	return loadConfig(aconfig.Config{
		EnvPrefix: "STOREFRONT",
		SkipFlags: true,
		SkipFiles: true,
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STOREFRONT_DATABASE_URL", "postgres://localhost/storefront")
	t.Setenv("STOREFRONT_AUTH_URL", "https://auth.example/auth/v1")

	cfg, err := testLoad(t)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, BackendPostgres, cfg.Snapshot.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 10, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 10*time.Second, cfg.Auth.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("STOREFRONT_AUTH_URL", "https://auth.example/auth/v1")
	t.Setenv("STOREFRONT_SNAPSHOT_BACKEND", "redis")

	cfg, err := testLoad(t)
	require.NoError(t, err)

	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, "redis://cache:6379/1", cfg.Snapshot.RedisURL)
}

func TestLoadConfig_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STOREFRONT_AUTH_URL", "https://auth.example/auth/v1")

	_, err := testLoad(t)
	require.ErrorContains(t, err, "database URL is required")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			DatabaseURL: "postgres://localhost/storefront",
			Snapshot:    SnapshotConfig{Backend: BackendPostgres},
			Auth:        AuthConfig{URL: "https://auth.example"},
			RateLimit:   RateLimitConfig{Max: 10, Window: time.Minute},
		}
	}

	for _, tt := range []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{name: "Valid", modify: func(*Config) {}},
		{name: "FileBackend", modify: func(c *Config) { c.Snapshot.Backend = BackendFile }},
		{name: "MissingAuthURL", modify: func(c *Config) { c.Auth.URL = "" }, errMsg: "auth URL is required"},
		{name: "UnknownBackend", modify: func(c *Config) { c.Snapshot.Backend = "etcd" }, errMsg: `unknown snapshot backend "etcd"`},
		{name: "MySQLWithoutDSN", modify: func(c *Config) { c.Snapshot.Backend = BackendMySQL }, errMsg: "requires a DSN"},
		{name: "RedisWithoutURL", modify: func(c *Config) { c.Snapshot.Backend = BackendRedis }, errMsg: "requires a Redis URL"},
		{name: "ZeroRateLimit", modify: func(c *Config) { c.RateLimit.Max = 0 }, errMsg: "rate limit"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}
