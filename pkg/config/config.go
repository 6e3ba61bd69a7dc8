// Package config builds the immutable process configuration from the
// environment, optionally seeded from a local .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"development"`
	Port string `env:"PORT" envDefault:"8081"`

	AccessSecret  string        `env:"ACCESS_TOKEN_SECRET,required,notEmpty"`
	RefreshSecret string        `env:"REFRESH_TOKEN_SECRET,required,notEmpty"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"168h"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	DBDriver    string `env:"DB_DRIVER" envDefault:"postgres"`
	DBDSN       string `env:"DB_DSN"`
	MongoDB     string `env:"MONGO_DB" envDefault:"fintrack"`
	AutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`

	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"0"`
	DefaultCurrency string        `env:"DEFAULT_CURRENCY" envDefault:"IDR"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load reads .env (when present, never overriding variables that are
// already set) and parses the environment into a validated Config.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}
	return Parse()
}

// Parse reads the current environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.AccessSecret == c.RefreshSecret {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	switch c.DBDriver {
	case DriverPostgres, DriverMongo:
		if strings.TrimSpace(c.DBDSN) == "" {
			errs = append(errs, fmt.Errorf("DB_DSN is required for DB_DRIVER=%s", c.DBDriver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}
	if len(c.DefaultCurrency) != 3 {
		errs = append(errs, errors.New("DEFAULT_CURRENCY must be a 3-letter code"))
	}
	return errors.Join(errs...)
}

func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}
