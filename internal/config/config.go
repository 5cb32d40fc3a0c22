// Package config loads readmark's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"

	"github.com/csheth/readmark/internal/store"
)

// FileName is the configuration file inside the home directory.
const FileName = "config.toml"

type Config struct {
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
	UI      UIConfig      `toml:"ui"`

	// Home is the directory the configuration was loaded from.
	Home string `toml:"-"`
}

type StorageConfig struct {
	Backend string `toml:"backend"`
	DataDir string `toml:"data_dir"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type UIConfig struct {
	AltScreen bool `toml:"alt_screen"`
}

func defaults(home string) Config {
	return Config{
		Storage: StorageConfig{
			Backend: store.BackendJSON,
			DataDir: filepath.Join(home, "data"),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(home, "readmark.log"),
		},
		UI: UIConfig{
			AltScreen: true,
		},
		Home: home,
	}
}

// HomeDir returns $READMARK_HOME, or ~/.readmark.
func HomeDir() (string, error) {
	return homeDir(os.Getenv)
}

func homeDir(getenv func(string) string) (string, error) {
	if home := strings.TrimSpace(getenv("READMARK_HOME")); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(userHome, ".readmark"), nil
}

// Load reads home/config.toml over the defaults and applies READMARK_*
// environment overrides. A missing file is not an error. An empty home uses
// HomeDir.
func Load(home string) (Config, error) {
	return loadWith(home, os.Getenv)
}

func loadWith(home string, getenv func(string) string) (Config, error) {
	if home == "" {
		var err error
		if home, err = homeDir(getenv); err != nil {
			return Config{}, err
		}
	}
	cfg := defaults(home)

	data, err := os.ReadFile(filepath.Join(home, FileName))
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", FileName, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("reading %s: %w", FileName, err)
	}
	cfg.Home = home

	applyEnvOverrides(&cfg, getenv)
	cfg.Storage.DataDir = expandHome(cfg.Storage.DataDir)
	cfg.Log.File = expandHome(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv("READMARK_STORAGE")); v != "" {
		cfg.Storage.Backend = v
	}
	if v := strings.TrimSpace(getenv("READMARK_DATA_DIR")); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := strings.TrimSpace(getenv("READMARK_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
}

// Validate rejects unknown storage backends and log levels.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case store.BackendJSON, store.BackendSQLite, store.BackendMemory:
	default:
		return fmt.Errorf("storage.backend: unknown backend %q (want json or sqlite)", c.Storage.Backend)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return errors.New("storage.data_dir must not be empty")
	}
	return nil
}

// Path is the configuration file location.
func (c Config) Path() string {
	return filepath.Join(c.Home, FileName)
}

// Encode renders the configuration as TOML.
func (c Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

// Write saves the configuration to Path, creating the home directory.
func (c Config) Write() error {
	data, err := c.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.Home, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Home, err)
	}
	return os.WriteFile(c.Path(), data, 0o600)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(userHome, strings.TrimPrefix(path, "~"))
}
