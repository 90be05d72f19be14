package common

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port          string
	DBFile        string
	AnalyticsDB   string
	SessionSecret string
	AdminEmail    string
	AdminPassword string
	CacheDir      string
	CacheMaxAge   time.Duration
	LogLevel      string
	LogPretty     bool
	Domain        string
	OperatorEmail string
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{
		Port:          getenv("PORT", "8080"),
		DBFile:        os.Getenv("SQLITE_DB"),
		AnalyticsDB:   os.Getenv("ANALYTICS_DB"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		CacheDir:      getenv("CACHE_DIR", "cache"),
		CacheMaxAge:   10 * time.Minute,
		LogLevel:      getenv("LOG_LEVEL", "info"),
		Domain:        getenv("DOMAIN", "http://localhost:8080"),
		OperatorEmail: os.Getenv("OPERATOR_EMAIL"),
	}

	if raw := os.Getenv("CACHE_MAX_AGE"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, errors.New("CACHE_MAX_AGE: " + err.Error())
		}
		cfg.CacheMaxAge = d
	}
	if raw := os.Getenv("LOG_PRETTY"); raw != "" {
		pretty, err := strconv.ParseBool(raw)
		if err != nil {
			log.Warn().Str("LOG_PRETTY", raw).Msg("ignoring invalid boolean")
		}
		cfg.LogPretty = pretty
	}

	if cfg.DBFile == "" {
		return nil, errors.New("SQLITE_DB environment variable not set")
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET environment variable not set")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
