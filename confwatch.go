package initd

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"

	"github.com/axondata/go-initd/internal/logging"
)

// DefaultDebounce coalesces the burst of events an editor save produces
const DefaultDebounce = 100 * time.Millisecond

// WatchCleanupFunc stops a watch and waits for its goroutine to exit
type WatchCleanupFunc func() error

// ConfigWatcher calls a function whenever a configuration file changes.
// The directory holding the file is watched rather than the file itself,
// so replacing the file by rename is seen too.
type ConfigWatcher struct {
	path     string
	onChange func()
	debounce time.Duration
	logger   *slog.Logger
}

// WatchOption configures a ConfigWatcher
type WatchOption func(*ConfigWatcher)

// WithDebounce sets how long the file must be quiet before onChange runs
func WithDebounce(d time.Duration) WatchOption {
	return func(w *ConfigWatcher) {
		w.debounce = d
	}
}

// WithWatchLogger sets the watcher's logger
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(w *ConfigWatcher) {
		w.logger = logger
	}
}

// NewConfigWatcher creates a watcher for path. onChange runs on the
// watcher's own goroutine; daemon code hands the work to the event loop.
func NewConfigWatcher(path string, onChange func(), opts ...WatchOption) *ConfigWatcher {
	w := &ConfigWatcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logging.NewNop()
	}
	return w
}

// Start begins watching until ctx is done or the cleanup function is called.
func (w *ConfigWatcher) Start(ctx context.Context) (WatchCleanupFunc, error) {
	if w.onChange == nil {
		return nil, ErrInvalidArgument
	}

	dir := filepath.Dir(w.path)
	name := filepath.Base(w.path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &LoadError{Op: "watch", Path: dir, Err: err}
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, &LoadError{Op: "watch", Path: dir, Err: err}
	}

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = watcher.Close()
	})

	var (
		mu        sync.Mutex
		debouncer *time.Timer
	)

	fire := func() {
		if sctx.IsStopping() {
			return
		}
		w.logger.Info("configuration changed", logging.String("path", w.path))
		w.onChange()
	}

	sctx.Go(func(sctx *stopper.Context) error {
		sctx.Defer(func() {
			mu.Lock()
			if debouncer != nil {
				debouncer.Stop()
			}
			mu.Unlock()
		})

		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}

				mu.Lock()
				if debouncer != nil {
					debouncer.Stop()
				}
				debouncer = time.AfterFunc(w.debounce, fire)
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if err != nil && !sctx.IsStopping() {
					w.logger.Warn("configuration watch error", logging.String("path", w.path), logging.Error(err))
				}
			}
		}
		return nil
	})

	cleanup := func() error {
		sctx.Stop(100 * time.Millisecond)
		return sctx.Wait()
	}

	return cleanup, nil
}
