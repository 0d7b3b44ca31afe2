// Package config reads the service configuration from the environment.
//
// Every setting has a default, so the service starts with no environment at
// all. A .env file, if present, is loaded first with godotenv; real
// environment variables win over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers accepted by STORE_DRIVER.
const (
	DriverSQLite = "sqlite"
	DriverJSON   = "json"
)

const (
	defaultPort          = 8080
	defaultSQLitePath    = "data/birthdays.db"
	defaultJSONPath      = "data/birthday_db.json"
	defaultSweepInterval = 60 * time.Second
	defaultLoginRate     = 5.0
	defaultLoginBurst    = 10
)

// Config holds every runtime setting.
type Config struct {
	Port int

	StoreDriver string
	StorePath   string

	// JWTSecret enables token auth on mutating routes when non-empty.
	JWTSecret string

	SweepEnabled  bool
	SweepInterval time.Duration
	Location      *time.Location

	LogLevel string
	LogFile  string // empty: stdout only

	SendGridAPIKey string
	SendGridFrom   string

	LoginRate  float64 // requests per second per client IP
	LoginBurst int
}

// LoadDotEnv loads path (usually ".env") into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through getenv. Invalid values are
// reported together in one error.
func LoadFrom(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		Port:           p.int("PORT", defaultPort),
		StoreDriver:    strings.ToLower(p.string("STORE_DRIVER", DriverSQLite)),
		JWTSecret:      getenv("JWT_SECRET"),
		SweepEnabled:   p.bool("SWEEP_ENABLED", true),
		SweepInterval:  p.duration("SWEEP_INTERVAL", defaultSweepInterval),
		LogLevel:       strings.ToLower(p.string("LOG_LEVEL", "info")),
		LogFile:        getenv("LOG_FILE"),
		SendGridAPIKey: getenv("SENDGRID_API_KEY"),
		SendGridFrom:   getenv("SENDGRID_FROM"),
		LoginRate:      p.float("LOGIN_RATE", defaultLoginRate),
		LoginBurst:     p.int("LOGIN_BURST", defaultLoginBurst),
	}

	switch cfg.StoreDriver {
	case DriverSQLite:
		cfg.StorePath = p.string("STORE_PATH", defaultSQLitePath)
	case DriverJSON:
		cfg.StorePath = p.string("STORE_PATH", defaultJSONPath)
	default:
		p.fail("STORE_DRIVER", cfg.StoreDriver, "must be sqlite or json")
	}

	cfg.Location = time.Local
	if tz := getenv("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			p.fail("TIMEZONE", tz, err.Error())
		} else {
			cfg.Location = loc
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		p.fail("PORT", strconv.Itoa(cfg.Port), "must be between 1 and 65535")
	}
	if cfg.SweepInterval <= 0 {
		p.fail("SWEEP_INTERVAL", cfg.SweepInterval.String(), "must be positive")
	}
	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 16 {
		p.fail("JWT_SECRET", "<redacted>", "must be at least 16 characters")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		p.fail("LOG_LEVEL", cfg.LogLevel, "must be debug, info, warn or error")
	}
	if cfg.SendGridAPIKey != "" && cfg.SendGridFrom == "" {
		p.fail("SENDGRID_FROM", "", "is required when SENDGRID_API_KEY is set")
	}
	if cfg.LoginRate <= 0 {
		p.fail("LOGIN_RATE", fmt.Sprint(cfg.LoginRate), "must be positive")
	}
	if cfg.LoginBurst < 1 {
		p.fail("LOGIN_BURST", strconv.Itoa(cfg.LoginBurst), "must be at least 1")
	}

	if len(p.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(p.errs...))
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AuthEnabled reports whether mutating routes require a token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// EmailEnabled reports whether notifications are also sent by email.
func (c *Config) EmailEnabled() bool {
	return c.SendGridAPIKey != ""
}

// parser collects errors so every bad variable is reported at once.
type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) fail(key, value, reason string) {
	p.errs = append(p.errs, fmt.Errorf("%s=%q %s", key, value, reason))
}

func (p *parser) string(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, "is not an integer")
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, "is not a number")
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, "is not a boolean")
		return def
	}
	return b
}

// duration accepts Go durations ("90s", "5m") or a bare number of seconds.
func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, "is not a duration")
		return def
	}
	return d
}
