package config

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Auth      AuthConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Deletion  DeletionConfig
	Bootstrap BootstrapConfig
}

type AuthConfig struct {
	JWTSecret          string        `env:"JWT_SECRET"`
	Issuer             string        `env:"JWT_ISSUER,               default=school-records"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL,         default=15m"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL,        default=168h"`
	DefaultRole        string        `env:"AUTH_DEFAULT_ROLE"`
	IncludePermissions bool          `env:"AUTH_INCLUDE_PERMISSIONS, default=false"`
	BcryptCost         int           `env:"BCRYPT_COST,              default=12"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=school_records"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
	// LockTTL bounds how long a crashed holder can keep a person locked.
	LockTTL time.Duration `env:"PERSON_LOCK_TTL, default=10s"`
}

type DeletionConfig struct {
	ScanInterval time.Duration `env:"DELETION_SCAN_INTERVAL, default=1h"`
	Workers      int           `env:"DELETION_WORKERS,       default=4"`
}

// BootstrapConfig describes the first administrator created at startup.
// Leaving the username empty disables bootstrapping.
type BootstrapConfig struct {
	Username string `env:"BOOTSTRAP_ADMIN_USERNAME"`
	Email    string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	Password string `env:"BOOTSTRAP_ADMIN_PASSWORD"`
}

func (b BootstrapConfig) Enabled() bool {
	return b.Username != ""
}

// IsProduction reports whether ENV selects production behaviour (JSON logs).
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SigningKey implements ports.SigningKeyProvider.
func (c AuthConfig) SigningKey() ([]byte, error) {
	if c.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	return []byte(c.JWTSecret), nil
}

// Load reads configuration from environment variables using go-envconfig.
func Load(log zerolog.Logger) *Config {
	cfg, err := LoadWith(context.Background(), envconfig.OsLookuper())
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		panic(err)
	}
	return cfg
}

// LoadWith reads configuration from an arbitrary lookuper.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	return &cfg, nil
}
