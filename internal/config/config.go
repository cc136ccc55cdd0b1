package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "BOOKCATALOG"

// DefaultMaxUploadSize is the cover image size limit (2MB).
const DefaultMaxUploadSize int64 = 2 * 1024 * 1024

// minSecretLength is the minimum HS256 key size in bytes.
const minSecretLength = 32

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN)
	DatabaseURL string `mapstructure:"database_url"`

	// Server bind address (host:port)
	ServerAddr string `mapstructure:"server_addr"`

	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites those headers.
	TrustProxy bool `mapstructure:"trust_proxy"`

	// Maximum database connection pool size
	MaxDBConnections int `mapstructure:"max_db_connections"`

	// Enable debug logging
	Debug bool `mapstructure:"debug"`

	JWT    JWTConfig    `mapstructure:"jwt"`
	Upload UploadConfig `mapstructure:"upload"`
	Login  LoginConfig  `mapstructure:"login"`
	CORS   CORSConfig   `mapstructure:"cors"`
}

// JWTConfig configures the token service.
type JWTConfig struct {
	// Secret is the HMAC signing key. It must be at least 32 bytes.
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// UploadConfig configures cover image storage.
type UploadConfig struct {
	Dir     string `mapstructure:"dir"`
	MaxSize int64  `mapstructure:"max_size"`
}

// LoginConfig configures throttling of the login endpoints.
type LoginConfig struct {
	// Rate is the sustained number of login requests per second allowed per client.
	Rate float64 `mapstructure:"rate"`
	// Burst is the token bucket size per client.
	Burst int `mapstructure:"burst"`
	// MaxFailures within FailureWindow locks the client out for Lockout.
	MaxFailures   int           `mapstructure:"max_failures"`
	FailureWindow time.Duration `mapstructure:"failure_window"`
	Lockout       time.Duration `mapstructure:"lockout"`
	// RedisURL switches the failure store from in-process to Redis.
	RedisURL string `mapstructure:"redis_url"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SetDefaults registers every known key on v so that environment variables
// are picked up by Unmarshal even when no config file mentions them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "file:bookcatalog.db?cache=shared")
	v.SetDefault("server_addr", "localhost:8080")
	v.SetDefault("trust_proxy", false)
	v.SetDefault("max_db_connections", 25)
	v.SetDefault("debug", false)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "bookcatalog")
	v.SetDefault("jwt.ttl", time.Hour)

	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_size", DefaultMaxUploadSize)

	v.SetDefault("login.rate", 1.0)
	v.SetDefault("login.burst", 5)
	v.SetDefault("login.max_failures", 5)
	v.SetDefault("login.failure_window", 15*time.Minute)
	v.SetDefault("login.lockout", 10*time.Minute)
	v.SetDefault("login.redis_url", "")

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})
}

// LoadDotEnv loads .env.local and .env into the process environment.
// Variables already present in the environment win. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from the global viper instance, environment
// variables prefixed with BOOKCATALOG_, and defaults.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants Load cannot express through defaults.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s_DATABASE_URL is required", EnvPrefix)
	}
	if c.ServerAddr == "" {
		return fmt.Errorf("%s_SERVER_ADDR is required", EnvPrefix)
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("jwt.ttl must be positive, got %s", c.JWT.TTL)
	}
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload.max_size must be positive, got %d", c.Upload.MaxSize)
	}
	if c.Login.MaxFailures < 0 || c.Login.Burst < 0 || c.Login.Rate < 0 {
		return fmt.Errorf("login throttling values must not be negative")
	}
	return nil
}

// ValidateForServe applies the stricter checks required to issue tokens.
// CLI commands that only touch the database skip them.
func (c *Config) ValidateForServe() error {
	if len(c.JWT.Secret) < minSecretLength {
		return fmt.Errorf("%s_JWT_SECRET must be at least %d bytes", EnvPrefix, minSecretLength)
	}
	return nil
}
