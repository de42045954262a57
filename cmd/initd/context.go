package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/axondata/go-initd/internal/config"
	"github.com/axondata/go-initd/internal/logging"
)

type commandContext struct {
	configFlag *string

	config *config.Config
	logger *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil || strings.TrimSpace(*c.configFlag) == "" {
		return config.DefaultPath
	}
	return strings.TrimSpace(*c.configFlag)
}

// load reads the configuration and builds the logger from it
func (c *commandContext) load() error {
	cfg, err := config.Load(c.configPath())
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return err
	}

	c.config = cfg
	c.logger = logger
	return nil
}
