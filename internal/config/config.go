package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	initd "github.com/axondata/go-initd"
)

// DefaultPath is read when no configuration path is given
const DefaultPath = "/etc/initd.toml"

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Service is one [[service]] table.
type Service struct {
	Name    string `toml:"name"`
	ID      string `toml:"id"`
	Type    string `toml:"type"`
	PIDFile string `toml:"pidfile"`
	Forking bool   `toml:"forking"`
}

// Config is the daemon configuration.
type Config struct {
	PluginDir string    `toml:"plugin_dir"`
	RunDir    string    `toml:"run_dir"`
	CondDir   string    `toml:"cond_dir"`
	LockFile  string    `toml:"lock_file"`
	Static    bool      `toml:"static"`
	Logging   Logging   `toml:"logging"`
	Services  []Service `toml:"service"`
}

// Load parses, normalizes and validates the file at path. An empty path
// means DefaultPath. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ServiceTable builds the services as the supervisor sees them
func (c *Config) ServiceTable() ([]*initd.Service, error) {
	out := make([]*initd.Service, 0, len(c.Services))
	for _, s := range c.Services {
		typ, err := initd.ParseServiceType(s.Type)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", s.Name, err)
		}
		out = append(out, &initd.Service{
			Name:    s.Name,
			ID:      s.ID,
			Type:    typ,
			PIDFile: s.PIDFile,
			Forking: s.Forking,
		})
	}
	return out, nil
}
