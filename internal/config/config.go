// Package config loads the per-repository settings file
// (<project>/.telos/config.yaml).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/telos/internal/lockfile"
	"github.com/roach88/telos/internal/object"
)

// FileName is the settings file inside the store directory.
const FileName = "config.yaml"

// CurrentVersion is written by Default and accepted by Load.
const CurrentVersion = 1

// Environment overrides for the default author.
const (
	EnvAuthorName  = "TELOS_AUTHOR_NAME"
	EnvAuthorEmail = "TELOS_AUTHOR_EMAIL"
)

// Config holds repository settings.
type Config struct {
	// Version is the settings format version.
	Version int `yaml:"version"`

	// Author is stamped on objects created without an explicit author.
	Author object.Author `yaml:"author"`

	// Strict makes queries fail on corrupted objects instead of skipping them.
	Strict bool `yaml:"strict"`

	// Lock is the retry policy around the non-blocking lock primitive.
	Lock LockConfig `yaml:"lock"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`
}

// LockConfig mirrors lockfile.Policy.
type LockConfig struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

// Policy converts the settings to a lockfile.Policy.
func (l LockConfig) Policy() lockfile.Policy {
	return lockfile.Policy{Attempts: l.Attempts, Backoff: l.Backoff}
}

// Default returns the settings written by init.
func Default() Config {
	return Config{
		Version: CurrentVersion,
		Author:  object.Author{Name: "Unknown", Email: "unknown@unknown"},
		Lock: LockConfig{
			Attempts: lockfile.DefaultPolicy.Attempts,
			Backoff:  lockfile.DefaultPolicy.Backoff,
		},
		LogLevel: "info",
	}
}

// Load reads path. A missing file yields Default(); a malformed one is an
// error. Environment overrides are applied in both cases.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		applyEnv(&cfg)
		return cfg, nil
	case err != nil:
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Save writes cfg to path atomically.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return lockfile.WriteFile(path, data)
}

func (c Config) validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported version %d", c.Version)
	}
	if c.Lock.Attempts < 1 {
		return fmt.Errorf("lock.attempts must be >= 1, got %d", c.Lock.Attempts)
	}
	if c.Lock.Backoff < 0 {
		return fmt.Errorf("lock.backoff must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func applyEnv(c *Config) {
	if v := os.Getenv(EnvAuthorName); v != "" {
		c.Author.Name = v
	}
	if v := os.Getenv(EnvAuthorEmail); v != "" {
		c.Author.Email = v
	}
}

// ParseLevel maps a log_level value to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log_level %q", s)
	}
}
