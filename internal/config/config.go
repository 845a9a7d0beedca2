// Package config loads the opda service configuration from toml.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type ServiceConfig struct {
	Name        string   `toml:"name"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	AuthToken   string   `toml:"auth_token"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type IngestConfig struct {
	Globs       []string `toml:"globs"`
	WatchDirs   []string `toml:"watch_dirs"`
	DebounceMS  int      `toml:"debounce_ms"`
	DefaultGoal string   `toml:"default_goal"`
}

type Config struct {
	Service ServiceConfig `toml:"service"`
	Store   StoreConfig   `toml:"store"`
	Ingest  IngestConfig  `toml:"ingest"`
}

// Debounce returns the ingest watcher debounce as a duration.
func (c IngestConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func Load(path string) (Config, error) {
	var cfg Config
	if err := loadToml(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = "opda"
	}
	if cfg.Service.Addr == "" {
		cfg.Service.Addr = ":9180"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "opda.db"
	}
	if cfg.Ingest.DebounceMS == 0 {
		cfg.Ingest.DebounceMS = 500
	}
	if cfg.Ingest.DefaultGoal == "" {
		cfg.Ingest.DefaultGoal = "maximize"
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		return fmt.Errorf("service config missing name")
	}
	if strings.TrimSpace(cfg.Service.Addr) == "" {
		return fmt.Errorf("service config missing addr")
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		return fmt.Errorf("store config missing path")
	}
	if cfg.Ingest.DebounceMS < 0 {
		return fmt.Errorf("ingest debounce_ms must not be negative")
	}
	switch cfg.Ingest.DefaultGoal {
	case "minimize", "maximize":
	default:
		return fmt.Errorf("ingest default_goal must be minimize or maximize, got %q", cfg.Ingest.DefaultGoal)
	}
	return nil
}
