package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, uint(3), cfg.ReadRetryAttempts)
	assert.Equal(t, 5.0, cfg.ToggleRatePerSecond)
	assert.Equal(t, "nanopulse", cfg.MongoDatabase)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", " Postgres ")
	t.Setenv("POSTGRES_CONN_STR", "postgres://localhost/pulse")
	t.Setenv("READ_RETRY_ATTEMPTS", "5")
	t.Setenv("TOGGLE_RATE_PER_SECOND", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://localhost/pulse", cfg.PostgresConnStr)
	assert.Equal(t, uint(5), cfg.ReadRetryAttempts)
	assert.Equal(t, 2.5, cfg.ToggleRatePerSecond)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Env:                 "production",
			StoreDriver:         DriverMemory,
			JWTSecret:           "0123456789abcdef0123456789abcdef",
			ReadRetryAttempts:   3,
			ToggleRatePerSecond: 5,
			ToggleBurst:         10,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "memory", mutate: func(*Config) {}},
		{name: "postgres without dsn", mutate: func(c *Config) { c.StoreDriver = DriverPostgres }, wantErr: "POSTGRES_CONN_STR"},
		{name: "mongo without uri", mutate: func(c *Config) { c.StoreDriver = DriverMongo; c.MongoDatabase = "x" }, wantErr: "MONGO_URI"},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "sqlite" }, wantErr: "unknown STORE_DRIVER"},
		{name: "no auth", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: "JWT_SECRET or FIREBASE"},
		{name: "short secret in production", mutate: func(c *Config) { c.JWTSecret = "short" }, wantErr: "at least 32"},
		{name: "short secret in development", mutate: func(c *Config) { c.JWTSecret = "short"; c.Env = "development" }},
		{name: "firebase only", mutate: func(c *Config) { c.JWTSecret = ""; c.FirebaseCredentialsPath = "creds.json" }},
		{name: "zero retries", mutate: func(c *Config) { c.ReadRetryAttempts = 0 }, wantErr: "READ_RETRY_ATTEMPTS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
