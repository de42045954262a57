package config

import (
	initd "github.com/axondata/go-initd"
)

const (
	defaultLockFile  = "/run/initd.lock"
	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
)

// Default returns the built-in configuration
func Default() Config {
	return Config{
		PluginDir: initd.DefaultPluginDir,
		RunDir:    initd.DefaultRunDir,
		CondDir:   initd.DefaultCondDir,
		LockFile:  defaultLockFile,
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
