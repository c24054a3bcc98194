// Package config loads process settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Port                    string  `mapstructure:"port"`
	Env                     string  `mapstructure:"app_env"`
	StoreDriver             string  `mapstructure:"store_driver"`
	PostgresConnStr         string  `mapstructure:"postgres_conn_str"`
	MongoURI                string  `mapstructure:"mongo_uri"`
	MongoDatabase           string  `mapstructure:"mongo_database"`
	RedisAddr               string  `mapstructure:"redis_addr"`
	RedisChannel            string  `mapstructure:"redis_channel"`
	JWTSecret               string  `mapstructure:"jwt_secret"`
	FirebaseCredentialsPath string  `mapstructure:"firebase_credentials_path"`
	MetricsPort             string  `mapstructure:"metrics_port"`
	ReadRetryAttempts       uint    `mapstructure:"read_retry_attempts"`
	ToggleRatePerSecond     float64 `mapstructure:"toggle_rate_per_second"`
	ToggleBurst             int     `mapstructure:"toggle_burst"`
}

var keys = map[string]interface{}{
	"port":                      "8080",
	"app_env":                   "development",
	"store_driver":              DriverMemory,
	"postgres_conn_str":         "",
	"mongo_uri":                 "",
	"mongo_database":            "nanopulse",
	"redis_addr":                "",
	"redis_channel":             "nanopulse:changefeed",
	"jwt_secret":                "",
	"firebase_credentials_path": "",
	"metrics_port":              "9090",
	"read_retry_attempts":       3,
	"toggle_rate_per_second":    5.0,
	"toggle_burst":              10,
}

// Load reads .env (when present) and the environment. Every key is the
// upper-cased field name, e.g. STORE_DRIVER.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, def := range keys {
		v.SetDefault(key, def)
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	return cfg, nil
}

// IsDevelopment reports whether the process runs in a development env.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}

// Validate rejects settings the selected driver cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.PostgresConnStr == "" {
			return errors.New("POSTGRES_CONN_STR is required for the postgres store")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo store")
		}
		if c.MongoDatabase == "" {
			return errors.New("MONGO_DATABASE is required for the mongo store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.JWTSecret == "" && c.FirebaseCredentialsPath == "" {
		return errors.New("set JWT_SECRET or FIREBASE_CREDENTIALS_PATH")
	}
	if c.JWTSecret != "" && !c.IsDevelopment() && len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET should be at least 32 characters")
	}
	if c.ReadRetryAttempts == 0 {
		return errors.New("READ_RETRY_ATTEMPTS must be at least 1")
	}
	if c.ToggleRatePerSecond <= 0 || c.ToggleBurst <= 0 {
		return errors.New("TOGGLE_RATE_PER_SECOND and TOGGLE_BURST must be positive")
	}
	return nil
}
