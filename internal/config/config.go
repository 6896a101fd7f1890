// Package config loads GreenPath settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/greenpath/greenpath/internal/database"
	"github.com/greenpath/greenpath/internal/telemetry"
)

// Storage backends for preference records.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const (
	stateFile          = "state.db"
	installationIDFile = "installation-id"
)

// Config is the complete client configuration.
type Config struct {
	APIURL      string        `env:"GREENPATH_API_URL" envDefault:"http://localhost:5000"`
	HTTPTimeout time.Duration `env:"GREENPATH_HTTP_TIMEOUT" envDefault:"30s"`
	GracePeriod time.Duration `env:"GREENPATH_GRACE_PERIOD" envDefault:"1s"`

	Storage        string `env:"GREENPATH_STORAGE" envDefault:"sqlite"`
	StatePath      string `env:"GREENPATH_STATE_PATH"`
	InstallationID string `env:"GREENPATH_INSTALLATION_ID"`

	ListenAddr string `env:"GREENPATH_LISTEN_ADDR" envDefault:"127.0.0.1:8090"`
	RateLimit  int    `env:"GREENPATH_RATE_LIMIT" envDefault:"60"`

	LogLevel    string `env:"GREENPATH_LOG_LEVEL" envDefault:"info"`
	Environment string `env:"APP_ENV" envDefault:"development"`

	Database  database.Config
	Telemetry telemetry.Config
}

// Load reads the given .env files, or ./.env when none are named, then
// parses the environment. Missing .env files are ignored; variables already
// set in the environment win.
func Load(envFiles ...string) (Config, error) {
	if err := loadDotEnv(envFiles); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.StatePath == "" {
		path, err := DefaultStatePath()
		if err != nil {
			return Config{}, err
		}
		cfg.StatePath = path
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// DefaultStatePath returns the SQLite state file under the user config directory.
func DefaultStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(dir, "greenpath", stateFile), nil
}

// Validate checks the configuration for values the client cannot run with.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("GREENPATH_API_URL must be an http(s) URL, got %q", c.APIURL)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("GREENPATH_HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("GREENPATH_GRACE_PERIOD must not be negative, got %s", c.GracePeriod)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("GREENPATH_RATE_LIMIT must be positive, got %d", c.RateLimit)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("GREENPATH_LOG_LEVEL: %w", err)
	}

	switch c.Storage {
	case StorageSQLite:
		if strings.TrimSpace(c.StatePath) == "" {
			return errors.New("GREENPATH_STATE_PATH is required for sqlite storage")
		}
	case StoragePostgres:
		if err := c.Database.Validate(); err != nil {
			return err
		}
	case StorageMemory:
	default:
		return fmt.Errorf("GREENPATH_STORAGE must be one of %s, %s, %s; got %q",
			StorageSQLite, StoragePostgres, StorageMemory, c.Storage)
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// IsDevelopment reports whether APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// ResolveInstallationID returns the configured installation ID. Otherwise
// it reads the ID kept next to the state file, creating one on first use.
// The ID keys this installation's record in shared postgres storage.
func (c Config) ResolveInstallationID() (string, error) {
	if c.InstallationID != "" {
		return c.InstallationID, nil
	}

	path := filepath.Join(filepath.Dir(c.StatePath), installationIDFile)
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read installation id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create state directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write installation id: %w", err)
	}
	return id, nil
}
