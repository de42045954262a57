package config

import (
	"path/filepath"
	"strings"
)

func (c *Config) normalize() {
	c.PluginDir = cleanPath(c.PluginDir)
	c.RunDir = cleanPath(c.RunDir)
	c.CondDir = cleanPath(c.CondDir)
	c.LockFile = cleanPath(c.LockFile)
	c.normalizeLogging()

	for i := range c.Services {
		s := &c.Services[i]
		s.Name = strings.TrimSpace(s.Name)
		s.ID = strings.TrimSpace(s.ID)
		s.Type = strings.ToLower(strings.TrimSpace(s.Type))
		s.PIDFile = cleanPath(s.PIDFile)
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}
