package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(env(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "data/birthdays.db", cfg.StorePath)
	assert.True(t, cfg.SweepEnabled)
	assert.Equal(t, 60*time.Second, cfg.SweepInterval)
	assert.Equal(t, time.Local, cfg.Location)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5.0, cfg.LoginRate)
	assert.Equal(t, 10, cfg.LoginBurst)
	assert.False(t, cfg.AuthEnabled())
	assert.False(t, cfg.EmailEnabled())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"PORT":             "9090",
		"STORE_DRIVER":     "JSON",
		"JWT_SECRET":       "a-very-long-test-secret",
		"SWEEP_ENABLED":    "false",
		"SWEEP_INTERVAL":   "5m",
		"TIMEZONE":         "UTC",
		"LOG_LEVEL":        "DEBUG",
		"LOG_FILE":         "/tmp/app.log",
		"SENDGRID_API_KEY": "SG.key",
		"SENDGRID_FROM":    "noreply@example.com",
		"LOGIN_RATE":       "0.5",
		"LOGIN_BURST":      "3",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverJSON, cfg.StoreDriver)
	assert.Equal(t, "data/birthday_db.json", cfg.StorePath, "driver-specific default path")
	assert.True(t, cfg.AuthEnabled())
	assert.False(t, cfg.SweepEnabled)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.EmailEnabled())
	assert.Equal(t, 0.5, cfg.LoginRate)
	assert.Equal(t, 3, cfg.LoginBurst)
}

func TestLoadFrom_IntervalInSeconds(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{"SWEEP_INTERVAL": "30"}))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"port not a number", map[string]string{"PORT": "http"}, "PORT"},
		{"port out of range", map[string]string{"PORT": "70000"}, "PORT"},
		{"unknown driver", map[string]string{"STORE_DRIVER": "redis"}, "STORE_DRIVER"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET"},
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}, "TIMEZONE"},
		{"bad interval", map[string]string{"SWEEP_INTERVAL": "often"}, "SWEEP_INTERVAL"},
		{"zero interval", map[string]string{"SWEEP_INTERVAL": "0"}, "SWEEP_INTERVAL"},
		{"bad bool", map[string]string{"SWEEP_ENABLED": "maybe"}, "SWEEP_ENABLED"},
		{"bad level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"sendgrid without sender", map[string]string{"SENDGRID_API_KEY": "SG.key"}, "SENDGRID_FROM"},
		{"bad burst", map[string]string{"LOGIN_BURST": "0"}, "LOGIN_BURST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(env(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFrom_ReportsAllErrors(t *testing.T) {
	_, err := LoadFrom(env(map[string]string{"PORT": "x", "LOG_LEVEL": "loud"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BIRTHDAY_TEST_DOTENV=from-file\n"), 0o644))
	t.Setenv("BIRTHDAY_TEST_DOTENV", "")
	os.Unsetenv("BIRTHDAY_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("BIRTHDAY_TEST_DOTENV"))
}
