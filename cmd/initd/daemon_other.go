//go:build !linux

package main

import (
	"context"
	"log/slog"

	"github.com/axondata/go-initd/internal/config"
	"github.com/axondata/go-initd/internal/loop"
)

func runDaemon(_ context.Context, _ string, _ *config.Config, _ *slog.Logger) error {
	return loop.ErrNotSupported
}
