// Package config loads and validates the TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Routing  RoutingConfig  `toml:"routing"`
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type CatalogConfig struct {
	Path string `toml:"path"`
}

type RoutingConfig struct {
	RequiredDepartments []string `toml:"required_departments"`
}

type ServerConfig struct {
	Bind        string `toml:"bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type LoggingConfig struct {
	Level   string `toml:"level"`
	DevFile string `toml:"dev_file"`
}

func Default(dbPath, catalogPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Catalog: CatalogConfig{
			Path: catalogPath,
		},
		Routing: RoutingConfig{
			RequiredDepartments: []string{},
		},
		Server: ServerConfig{
			Bind:        "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}
	if strings.TrimSpace(c.Catalog.Path) == "" {
		return errors.New("catalog.path is required")
	}

	seen := make([]string, 0, len(c.Routing.RequiredDepartments))
	for i, raw := range c.Routing.RequiredDepartments {
		dept := strings.TrimSpace(strings.ToLower(raw))
		if dept == "" {
			return fmt.Errorf("routing.required_departments[%d] is empty", i)
		}
		if slices.Contains(seen, dept) {
			return fmt.Errorf("routing.required_departments[%d] is duplicated: %s", i, dept)
		}
		seen = append(seen, dept)
	}

	if strings.TrimSpace(c.Server.Bind) == "" {
		return errors.New("server.bind is required")
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	return nil
}

// RequiredDepartments returns the normalized completion set.
func (c Config) RequiredDepartments() []string {
	out := make([]string, 0, len(c.Routing.RequiredDepartments))
	for _, raw := range c.Routing.RequiredDepartments {
		dept := strings.TrimSpace(strings.ToLower(raw))
		if dept == "" || slices.Contains(out, dept) {
			continue
		}
		out = append(out, dept)
	}
	return out
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
