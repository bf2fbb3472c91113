package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Snapshot backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMySQL    = "mysql"
	BackendFile     = "file"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL for the catalog (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL prepended to relative product image paths" flag:"image-base-url"`
	Snapshot     SnapshotConfig
	Auth         AuthConfig
	Session      SessionConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// SnapshotConfig selects where cart snapshots are persisted.
type SnapshotConfig struct {
	Backend  string        `default:"postgres" usage:"Cart snapshot backend: postgres, redis, mysql or file"`
	RedisURL string        `default:"redis://localhost:6379/0" usage:"Redis URL for the redis backend (or REDIS_URL)"`
	TTL      time.Duration `default:"720h" usage:"Expiry of idle snapshots in Redis, 0 keeps them"`
	MySQLDSN string        `env:"MYSQL_DSN" flag:"mysql-dsn" usage:"go-sql-driver DSN for the mysql backend"`
	Dir      string        `default:"data/carts" usage:"Directory for the file backend"`
}

// AuthConfig points at the password-grant authentication backend.
type AuthConfig struct {
	URL     string        `usage:"Auth API base URL, e.g. https://<project>.supabase.co/auth/v1"`
	APIKey  string        `usage:"Key sent in the apikey header"`
	Timeout time.Duration `default:"10s" usage:"Auth request timeout"`
}

// SessionConfig controls per-session carts.
type SessionConfig struct {
	TTL          time.Duration `default:"24h" usage:"Idle time after which an in-memory cart is dropped"`
	SecureCookie bool          `default:"false" usage:"Mark the session cookie Secure"`
}

// RateLimitConfig controls the per-client limit on login attempts.
type RateLimitConfig struct {
	Max    int           `default:"10" usage:"Max login attempts per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files and flags, then applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.URL == "" {
		return errors.New("auth URL is required: set STOREFRONT_AUTH_URL")
	}
	switch c.Snapshot.Backend {
	case BackendPostgres, BackendFile:
	case BackendRedis:
		if c.Snapshot.RedisURL == "" {
			return errors.New("redis snapshot backend requires a Redis URL")
		}
	case BackendMySQL:
		if c.Snapshot.MySQLDSN == "" {
			return errors.New("mysql snapshot backend requires a DSN")
		}
	default:
		return errors.Errorf("unknown snapshot backend %q", c.Snapshot.Backend)
	}
	if c.RateLimit.Max < 1 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit needs a positive max and window")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (DATABASE_URL, REDIS_URL, PORT) onto the STOREFRONT_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if v := os.Getenv("REDIS_URL"); v != "" && c.Snapshot.Backend == BackendRedis {
		c.Snapshot.RedisURL = v
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
