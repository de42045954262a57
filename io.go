package initd

import (
	"github.com/axondata/go-initd/internal/logging"
	"github.com/axondata/go-initd/internal/loop"
)

// IOWatcher is an event loop subscription for one descriptor
type IOWatcher = loop.Watcher

// IOCallback is called by the event loop when a descriptor is ready
type IOCallback = loop.Callback

// EventLoop is the daemon's single event loop
type EventLoop interface {
	Watch(fd int, flags Events, fn IOCallback) (IOWatcher, error)
}

// InitIO attaches every plugin with an I/O binding to the event loop and
// returns the number of plugins that could not be attached.
func (r *Registry) InitIO() int {
	fail := 0

	for _, p := range r.plugins {
		if !p.isIO() || p.watcher != nil {
			continue
		}

		if r.loop == nil {
			r.logger.Error("failed initializing I/O plugin",
				logging.String("plugin", p.Name),
				logging.Error(ErrNoEventLoop),
			)
			fail++
			continue
		}

		r.logger.Debug("initializing I/O plugin",
			logging.String("plugin", p.Name),
			logging.Int("fd", p.IO.FD),
			logging.String("flags", p.IO.Flags.String()),
		)

		w, err := r.loop.Watch(p.IO.FD, p.IO.Flags, r.ioHandler(p))
		if err != nil {
			r.logger.Error("failed initializing I/O plugin",
				logging.String("plugin", p.Name),
				logging.Error(err),
			)
			fail++
			continue
		}
		p.watcher = w
	}

	return fail
}

// ioHandler adapts the loop's callback to the plugin's. The watcher is
// stopped while the plugin runs and re-armed afterwards with whatever
// descriptor and mask the plugin left in its record, which lets a plugin
// swap its descriptor from inside the callback.
func (r *Registry) ioHandler(p *Plugin) IOCallback {
	return func(w IOWatcher, events Events) {
		if err := w.Stop(); err != nil {
			r.logger.Warn("failed stopping plugin I/O", logging.String("plugin", p.Name), logging.Error(err))
		}

		fd := w.FD()
		r.safeCall(p, "io", func() { p.IO.Fn(p.IO.Arg, fd, events) })

		// Unregistered from inside its own callback
		if p.watcher != w {
			return
		}

		if p.IO.FD <= 0 {
			r.logger.Debug("plugin dropped its descriptor", logging.String("plugin", p.Name))
			return
		}

		if err := w.Set(p.IO.FD, p.IO.Flags); err != nil {
			r.logger.Error("failed re-arming plugin I/O", logging.String("plugin", p.Name), logging.Error(err))
		}
	}
}
