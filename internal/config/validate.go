package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	initd "github.com/axondata/go-initd"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	paths := map[string]string{
		"plugin_dir": c.PluginDir,
		"run_dir":    c.RunDir,
		"cond_dir":   c.CondDir,
		"lock_file":  c.LockFile,
	}
	for key, p := range paths {
		if p == "" {
			return fmt.Errorf("%s must be set", key)
		}
		if !filepath.IsAbs(p) {
			return fmt.Errorf("%s must be absolute, got %q", key, p)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateServices() error {
	seen := make(map[string]struct{}, len(c.Services))
	for _, s := range c.Services {
		if s.Name == "" {
			return errors.New("service.name must be set")
		}
		if strings.ContainsAny(s.Name, "/:") || strings.ContainsAny(s.ID, "/:") {
			return fmt.Errorf("service %s: name and id may not contain '/' or ':'", s.Name)
		}

		key := s.Name + ":" + s.ID
		if _, dup := seen[key]; dup {
			return fmt.Errorf("service %s: defined twice", key)
		}
		seen[key] = struct{}{}

		if _, err := initd.ParseServiceType(s.Type); err != nil {
			return fmt.Errorf("service %s: %w", s.Name, err)
		}
		if s.PIDFile != "" && !filepath.IsAbs(s.PIDFile) {
			return fmt.Errorf("service %s: pidfile must be absolute, got %q", s.Name, s.PIDFile)
		}
		if s.Forking && s.PIDFile == "" {
			return fmt.Errorf("service %s: forking services need a pidfile", s.Name)
		}
	}
	return nil
}
