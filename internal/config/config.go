// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvSonarURL        = "SONARPANEL_SONAR_URL"
	EnvSonarTimeout    = "SONARPANEL_SONAR_TIMEOUT"
	EnvListenAddr      = "SONARPANEL_LISTEN_ADDR"
	EnvDBPath          = "SONARPANEL_DB_PATH"
	EnvSecretKey       = "SONARPANEL_SECRET_KEY"
	EnvIssuesPageSize  = "SONARPANEL_ISSUES_PAGE_SIZE"
	EnvIssuesMaxPages  = "SONARPANEL_ISSUES_MAX_PAGES"
	EnvProjectTokenTTL = "SONARPANEL_PROJECT_TOKEN_TTL"
	EnvAdminTokenRate  = "SONARPANEL_ADMIN_TOKEN_RATE"
	EnvLogLevel        = "SONARPANEL_LOG_LEVEL"
	EnvLogFormat       = "SONARPANEL_LOG_FORMAT"
)

// maxIssuesPageSize is the largest page size the remote issue search accepts.
const maxIssuesPageSize = 500

// Config holds the application configuration loaded from environment variables.
type Config struct {
	SonarURL        string
	SonarTimeout    time.Duration
	ListenAddr      string
	DBPath          string
	SecretKey       []byte // nil when unset
	IssuesPageSize  int
	IssuesMaxPages  int
	ProjectTokenTTL time.Duration
	AdminTokenRate  int
	LogLevel        slog.Level
	LogFormat       string
}

// HasSecretKey reports whether credential encryption is configured.
func (c *Config) HasSecretKey() bool {
	return len(c.SecretKey) > 0
}

// Load reads a .env file from the working directory when present, then
// reads configuration from environment variables and returns a validated
// Config. Variables already set in the process win over the .env file.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is not an error.
func LoadFile(dotenvPath string) (*Config, error) {
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotenvPath, err)
	}

	cfg := &Config{
		SonarURL:   strings.TrimRight(envOr(EnvSonarURL, "http://localhost:9000"), "/"),
		ListenAddr: envOr(EnvListenAddr, "127.0.0.1:8080"),
		DBPath:     envOr(EnvDBPath, "sonarpanel.db"),
		LogFormat:  strings.ToLower(envOr(EnvLogFormat, "text")),
	}

	var err error
	if cfg.SonarTimeout, err = durationEnv(EnvSonarTimeout, 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProjectTokenTTL, err = durationEnv(EnvProjectTokenTTL, 0); err != nil {
		return nil, err
	}
	if cfg.IssuesPageSize, err = intEnv(EnvIssuesPageSize, maxIssuesPageSize, 1, maxIssuesPageSize); err != nil {
		return nil, err
	}
	if cfg.IssuesMaxPages, err = intEnv(EnvIssuesMaxPages, 20, 1, 1000); err != nil {
		return nil, err
	}
	if cfg.AdminTokenRate, err = intEnv(EnvAdminTokenRate, 5, 0, 10000); err != nil {
		return nil, err
	}

	if v := os.Getenv(EnvSecretKey); v != "" {
		key, err := hex.DecodeString(v)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("%s must be 64 hex characters (32 bytes)", EnvSecretKey)
		}
		cfg.SecretKey = key
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envOr(EnvLogLevel, "info"))); err != nil {
		return nil, fmt.Errorf("%s: %w", EnvLogLevel, err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("%s must be text or json, got %q", EnvLogFormat, cfg.LogFormat)
	}
	if cfg.SonarURL == "" {
		return nil, fmt.Errorf("%s must not be empty", EnvSonarURL)
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func intEnv(key string, def, lo, hi int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%s must be between %d and %d, got %d", key, lo, hi, n)
	}
	return n, nil
}
