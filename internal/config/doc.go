// Package config loads the daemon's TOML configuration.
package config
