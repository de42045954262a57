package initd

import (
	"io"
	"reflect"
	"runtime"
	"strings"
)

// IOFunc is called on the event loop when a plugin's descriptor is ready.
// It receives the plugin's I/O argument, the descriptor and the readiness
// mask. The callback may close or replace IO.FD; the bridge re-arms using
// whatever the record holds when the callback returns.
type IOFunc func(arg any, fd int, events Events)

// IO is a plugin's optional descriptor binding
type IO struct {
	FD    int
	Fn    IOFunc
	Arg   any
	Flags Events
}

// Plugin is the registration record of one plugin.
type Plugin struct {
	// Name is unique across a Registry. Left empty it is derived from the
	// module file name or, for built-ins, from the callbacks' package.
	Name string

	// Hooks holds at most one callback per hook point
	Hooks [HookCount]Hook

	// Depends lists plugins that must be loaded first, at most MaxDepends
	Depends []string

	// IO is an optional descriptor watched on the event loop
	IO IO

	// Closer, if set, releases what the entry point allocated. It is
	// closed when the record is unregistered, on Exit, and when a loaded
	// record is rejected because its name is already taken.
	Closer io.Closer

	module  Module
	watcher IOWatcher
}

// isIO reports whether the plugin has a descriptor and a callback
func (p *Plugin) isIO() bool {
	return p.IO.Fn != nil && p.IO.FD > 0
}

// HookNames returns the names of the hook points the plugin binds
func (p *Plugin) HookNames() []string {
	var names []string
	for i := HookPoint(0); i < HookCount; i++ {
		if p.Hooks[i].Fn != nil {
			names = append(names, i.String())
		}
	}
	return names
}

// HasIO reports whether the plugin binds a descriptor
func (p *Plugin) HasIO() bool {
	return p.isIO()
}

// Loaded reports whether the plugin came from a loadable module
func (p *Plugin) Loaded() bool {
	return p.module != nil
}

// trimExt strips a module or source file suffix from name
func trimExt(name string) string {
	for _, ext := range []string{ModuleExt, SourceExt} {
		if trimmed, ok := strings.CutSuffix(name, ext); ok && trimmed != "" {
			return trimmed
		}
	}
	return name
}

// introspectName derives a name from the package defining the plugin's
// first callback, e.g. ".../plugins/pidfile.(*Monitor).reconf-fm" gives
// "pidfile".
func introspectName(p *Plugin) string {
	var fn any
	for i := range p.Hooks {
		if p.Hooks[i].Fn != nil {
			fn = p.Hooks[i].Fn
			break
		}
	}
	if fn == nil && p.IO.Fn != nil {
		fn = p.IO.Fn
	}
	if fn == nil {
		return UnknownName
	}

	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return UnknownName
	}

	full := f.Name()
	if i := strings.LastIndex(full, "/"); i >= 0 {
		full = full[i+1:]
	}
	pkg, _, _ := strings.Cut(full, ".")
	if pkg == "" || pkg == "main" {
		return UnknownName
	}
	return pkg
}

// release closes the plugin's Closer once
func (p *Plugin) release() error {
	if p.Closer == nil {
		return nil
	}
	c := p.Closer
	p.Closer = nil
	return c.Close()
}
