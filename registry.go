package initd

import (
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/axondata/go-initd/internal/logging"
)

// Registry owns the loaded plugins, in registration order. Registration
// order is dispatch order for hooks.
//
// A Registry is not safe for concurrent use. It is driven from the
// daemon's event loop goroutine, which is the only goroutine that may
// call into it once the loop runs.
type Registry struct {
	plugins []*Plugin

	// path is the plugin search directory, set by the first Discover
	path string

	loader   Loader
	loop     EventLoop
	host     *Host
	conds    ConditionStore
	services ServiceRegistry
	logger   *slog.Logger
	static   bool

	// resolving holds names whose dependencies are being loaded
	resolving map[string]struct{}
}

// Option configures a Registry
type Option func(*Registry)

// WithLoader sets the module loader used by Discover and dependency resolution
func WithLoader(l Loader) Option {
	return func(r *Registry) {
		r.loader = l
	}
}

// WithEventLoop sets the loop I/O plugins are attached to
func WithEventLoop(l EventLoop) Option {
	return func(r *Registry) {
		r.loop = l
	}
}

// WithConditions sets the store hook conditions are signalled in
func WithConditions(c ConditionStore) Option {
	return func(r *Registry) {
		r.conds = c
	}
}

// WithServices sets the service registry stepped after each hook
func WithServices(s ServiceRegistry) Option {
	return func(r *Registry) {
		r.services = s
	}
}

// WithLogger sets the registry's logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithHost sets what loadable modules receive from their entry point
func WithHost(h *Host) Option {
	return func(r *Registry) {
		r.host = h
	}
}

// WithPluginPath sets the plugin search directory before any Discover
func WithPluginPath(dir string) Option {
	return func(r *Registry) {
		r.path = dir
	}
}

// WithStatic marks a registry whose plugins are linked in and can never be
// unregistered
func WithStatic() Option {
	return func(r *Registry) {
		r.static = true
	}
}

// NewRegistry creates an empty Registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		resolving: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	if r.host == nil {
		r.host = &Host{
			Logger:     r.logger,
			Conditions: r.conds,
			Services:   r.services,
			RunDir:     DefaultRunDir,
		}
	}

	return r
}

// Register adds p to the registry. A plugin whose name is already
// registered is silently ignored. Dependencies are resolved before p is
// appended, so they precede it in dispatch order.
func (r *Registry) Register(p *Plugin) error {
	if p == nil {
		return ErrInvalidArgument
	}

	if p.Name == "" {
		p.Name = introspectName(p)
	}
	p.Name = trimExt(p.Name)

	if r.Find(p.Name) != nil {
		r.logger.Debug("plugin already loaded", logging.String("plugin", p.Name))
		return nil
	}

	if len(p.Depends) > MaxDepends {
		r.logger.Warn("too many dependencies, ignoring the rest",
			logging.String("plugin", p.Name),
			logging.Int("declared", len(p.Depends)),
			logging.Int("max", MaxDepends),
		)
		p.Depends = p.Depends[:MaxDepends]
	}

	r.resolveDepends(p)

	r.plugins = append(r.plugins, p)
	r.logger.Debug("registered plugin", logging.String("plugin", p.Name))
	return nil
}

// Unregister stops p's I/O watcher, removes it and closes its module.
// Static registries refuse with ErrStatic.
func (r *Registry) Unregister(p *Plugin) error {
	if p == nil {
		return ErrInvalidArgument
	}
	if r.static {
		r.logger.Error("static build, cannot unload plugin", logging.String("plugin", p.Name))
		return ErrStatic
	}

	i := slices.Index(r.plugins, p)
	if i < 0 {
		return ErrNotRegistered
	}

	if p.watcher != nil {
		if err := p.watcher.Stop(); err != nil {
			r.logger.Warn("failed stopping plugin I/O", logging.String("plugin", p.Name), logging.Error(err))
		}
		p.watcher = nil
	}

	r.plugins = slices.Delete(r.plugins, i, i+1)
	r.logger.Debug("plugin exiting", logging.String("plugin", p.Name))

	if err := p.release(); err != nil {
		r.logger.Warn("failed releasing plugin", logging.String("plugin", p.Name), logging.Error(err))
	}

	if p.module != nil {
		if err := p.module.Close(); err != nil {
			r.logger.Error("failed unloading plugin", logging.String("plugin", p.Name), logging.Error(err))
		}
		p.module = nil
	}
	return nil
}

// Find returns the first plugin named name. If there is none, name is
// relative and a search path is known, the lookup is retried with the
// search path prepended and the module extension appended. Nil means not
// found.
func (r *Registry) Find(name string) *Plugin {
	if name == "" {
		return nil
	}
	if p := r.lookup(name); p != nil {
		return p
	}

	if r.path != "" && !filepath.IsAbs(name) {
		full := filepath.Join(r.path, name)
		if !strings.HasSuffix(full, ModuleExt) {
			full += ModuleExt
		}
		if p := r.lookup(full); p != nil {
			return p
		}
		return r.lookup(trimExt(full))
	}

	return nil
}

func (r *Registry) lookup(name string) *Plugin {
	for _, p := range r.plugins {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Plugins returns the registered plugins in registration order
func (r *Registry) Plugins() []*Plugin {
	return slices.Clone(r.plugins)
}

// Len returns the number of registered plugins
func (r *Registry) Len() int {
	return len(r.plugins)
}

// Path returns the plugin search directory
func (r *Registry) Path() string {
	return r.path
}

func (r *Registry) last() *Plugin {
	if len(r.plugins) == 0 {
		return nil
	}
	return r.plugins[len(r.plugins)-1]
}

// Exit stops all plugin I/O, releases plugins and closes every module
// handle. It is called once at daemon shutdown.
func (r *Registry) Exit() {
	for _, p := range r.plugins {
		if p.watcher != nil {
			_ = p.watcher.Stop()
			p.watcher = nil
		}
		if err := p.release(); err != nil {
			r.logger.Warn("failed releasing plugin", logging.String("plugin", p.Name), logging.Error(err))
		}
		if p.module == nil {
			continue
		}
		if err := p.module.Close(); err != nil {
			r.logger.Error("failed unloading plugin", logging.String("plugin", p.Name), logging.Error(err))
		}
		p.module = nil
	}
}
