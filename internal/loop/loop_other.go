//go:build !linux

package loop

import (
	"context"
	"log/slog"
	"time"
)

// Loop is unavailable on this platform
type Loop struct{}

// Option configures a Loop
type Option func(*Loop)

// WithLogger sets the logger used for dispatch diagnostics
func WithLogger(_ *slog.Logger) Option {
	return func(*Loop) {}
}

// New is not supported on this platform
func New(_ ...Option) (*Loop, error) {
	return nil, ErrNotSupported
}

// Watch is not supported on this platform
func (l *Loop) Watch(_ int, _ Events, _ Callback) (Watcher, error) {
	return nil, ErrNotSupported
}

// Post is not supported on this platform
func (l *Loop) Post(_ func()) error { return ErrNotSupported }

// RunOnce is not supported on this platform
func (l *Loop) RunOnce(_ time.Duration) error { return ErrNotSupported }

// Run is not supported on this platform
func (l *Loop) Run(_ context.Context) error { return ErrNotSupported }

// Close is a no-op on this platform
func (l *Loop) Close() error { return nil }
