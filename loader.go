package initd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"strings"

	"github.com/axondata/go-initd/internal/logging"
)

// Host is what a loadable module receives from its entry point. It gives
// the module access to the daemon's collaborators without package globals.
type Host struct {
	Logger     *slog.Logger
	Conditions ConditionStore
	Services   ServiceRegistry
	RunDir     string
	Loop       EventLoop
}

// EntryFunc is the signature of a module's EntrySymbol
type EntryFunc = func(*Host) (*Plugin, error)

// Loader opens plugin modules
type Loader interface {
	Open(path string) (Module, error)
}

// Module is an open plugin module
type Module interface {
	// Entry calls the module's entry point and returns its descriptor
	Entry(h *Host) (*Plugin, error)
	// Close releases the module
	Close() error
}

// GoLoader loads modules built with -buildmode=plugin
type GoLoader struct{}

// Open opens the shared object at path
func (GoLoader) Open(path string) (Module, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return &goModule{path: path, p: p}, nil
}

type goModule struct {
	path string
	p    *plugin.Plugin
}

func (m *goModule) Entry(h *Host) (*Plugin, error) {
	sym, err := m.p.Lookup(EntrySymbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoEntry, err)
	}

	// Lookup returns a pointer for variables and the value for functions
	switch fn := sym.(type) {
	case EntryFunc:
		return fn(h)
	case *EntryFunc:
		return (*fn)(h)
	default:
		return nil, fmt.Errorf("%w: %s has type %T", ErrNoEntry, EntrySymbol, sym)
	}
}

// Close is a no-op, the Go runtime cannot unload a plugin
func (m *goModule) Close() error {
	return nil
}

// Discover loads every module in dir, skipping dotfiles and directories,
// and remembers dir as the search path for dependencies. It returns the
// number of modules that failed to load; the error aggregates the reasons
// and is advisory only.
func (r *Registry) Discover(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		r.logger.Error("failed listing plugin directory", logging.String("dir", dir), logging.Error(err))
		return 1, &LoadError{Op: "discover", Path: dir, Err: err}
	}

	r.path = dir

	var (
		fail int
		errs MultiError
	)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || e.IsDir() {
			continue
		}

		// Already pulled in as a dependency of an earlier module
		if r.Find(trimExt(e.Name())) != nil {
			continue
		}

		if err := r.load(filepath.Join(dir, e.Name())); err != nil {
			fail++
			errs.Add(err)
		}
	}

	return fail, errs.Err()
}

// pluginDir is where dependencies are looked for
func (r *Registry) pluginDir() string {
	if r.path != "" {
		return r.path
	}
	return DefaultPluginDir
}

// load opens the module at path, registers what its entry point returns
// and checks the record ended up last in the registry.
func (r *Registry) load(path string) error {
	if r.loader == nil {
		return &LoadError{Op: "open", Path: path, Err: ErrNoLoader}
	}

	mod, err := r.loader.Open(path)
	if err != nil {
		r.logger.Error("failed loading plugin", logging.String("path", path), logging.Error(err))
		return &LoadError{Op: "open", Path: path, Err: err}
	}

	p, err := mod.Entry(r.host)
	if err == nil && p == nil {
		err = ErrNoEntry
	}
	if err != nil {
		_ = mod.Close()
		r.logger.Error("plugin entry point failed", logging.String("path", path), logging.Error(err))
		return &LoadError{Op: "entry", Path: path, Err: err}
	}

	if p.Name == "" {
		p.Name = filepath.Base(path)
	}
	p.module = mod

	if err := r.Register(p); err != nil {
		p.module = nil
		_ = p.release()
		_ = mod.Close()
		return &LoadError{Op: "register", Path: path, Err: err}
	}

	// A name clash leaves the earlier record in place
	if r.last() != p {
		p.module = nil
		if err := p.release(); err != nil {
			r.logger.Warn("failed releasing rejected plugin", logging.String("path", path), logging.Error(err))
		}
		_ = mod.Close()
		r.logger.Error("plugin did not register", logging.String("path", path), logging.String("plugin", p.Name))
		return &LoadError{Op: "register", Path: path, Err: ErrNotRegistered}
	}

	r.logger.Info("loaded plugin", logging.String("plugin", p.Name), logging.String("path", path))
	return nil
}

// resolveDepends loads every dependency of p not yet registered. Missing
// dependencies are logged and otherwise ignored. A dependency that is
// itself waiting on its own dependencies is a cycle and is skipped.
func (r *Registry) resolveDepends(p *Plugin) {
	if len(p.Depends) == 0 {
		return
	}

	r.resolving[p.Name] = struct{}{}
	defer delete(r.resolving, p.Name)

	for _, name := range p.Depends {
		if name == "" || r.Find(name) != nil {
			continue
		}

		if _, busy := r.resolving[trimExt(name)]; busy {
			r.logger.Warn("circular plugin dependency, skipping",
				logging.String("plugin", p.Name),
				logging.String("depends", name),
			)
			continue
		}

		path := filepath.Join(r.pluginDir(), name)
		if !strings.HasSuffix(path, ModuleExt) {
			path += ModuleExt
		}

		if err := r.load(path); err != nil {
			attrs := []any{
				logging.String("plugin", p.Name),
				logging.String("depends", name),
			}
			if !errors.Is(err, ErrNoLoader) {
				attrs = append(attrs, logging.Error(err))
			}
			r.logger.Warn("missing plugin dependency", attrs...)
		}
	}
}
