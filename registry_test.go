package initd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func noop(any) {}

func TestRegisterNil(t *testing.T) {
	r := NewRegistry()
	require.ErrorIs(t, r.Register(nil), ErrInvalidArgument)
	require.ErrorIs(t, r.Unregister(nil), ErrInvalidArgument)
}

func TestRegisterDuplicateKeepsFirst(t *testing.T) {
	r := NewRegistry()

	first := &Plugin{Name: "a"}
	second := &Plugin{Name: "a", Depends: []string{"x"}}

	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	assert.Equal(t, 1, r.Len())
	assert.Same(t, first, r.Find("a"))
}

func TestRegisterNames(t *testing.T) {
	tests := []struct {
		name   string
		plugin *Plugin
		want   string
	}{
		{"module suffix", &Plugin{Name: "pidfile.so"}, "pidfile"},
		{"source suffix", &Plugin{Name: "netlink.go"}, "netlink"},
		{"bare suffix kept", &Plugin{Name: ".so"}, ".so"},
		{"no callbacks", &Plugin{}, UnknownName},
		{"from callback package", &Plugin{Hooks: [HookCount]Hook{HookShutdown: {Fn: runtime.KeepAlive}}}, "runtime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			require.NoError(t, r.Register(tt.plugin))
			assert.Equal(t, tt.want, tt.plugin.Name)
			assert.Same(t, tt.plugin, r.Find(tt.want))
		})
	}
}

func TestRegisterTruncatesDepends(t *testing.T) {
	r := NewRegistry()

	var deps []string
	for i := 0; i < MaxDepends+3; i++ {
		deps = append(deps, fmt.Sprintf("dep%d", i))
	}

	p := &Plugin{Name: "greedy", Depends: deps}
	require.NoError(t, r.Register(p))
	assert.Len(t, p.Depends, MaxDepends)
	assert.Equal(t, "dep9", p.Depends[MaxDepends-1])
}

func TestRegistrationIdempotenceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seq := rapid.SliceOf(rapid.SampledFrom([]string{"a", "b", "c", "d", "e"})).Draw(t, "names")

		r := NewRegistry()
		first := make(map[string]*Plugin)
		var order []string

		for _, name := range seq {
			p := &Plugin{Name: name}
			if err := r.Register(p); err != nil {
				t.Fatalf("register %s: %v", name, err)
			}
			if _, ok := first[name]; !ok {
				first[name] = p
				order = append(order, name)
			}
		}

		if r.Len() != len(first) {
			t.Fatalf("registry holds %d plugins, want %d", r.Len(), len(first))
		}
		got := names(r.Plugins())
		for i := range order {
			if got[i] != order[i] {
				t.Fatalf("order %v, want %v", got, order)
			}
		}
		for name, p := range first {
			if r.Find(name) != p {
				t.Fatalf("Find(%s) did not return the first record", name)
			}
		}
	})
}

func TestFindSearchPath(t *testing.T) {
	r := NewRegistry(WithPluginPath("/lib/plugins"))

	p := &Plugin{Name: "/lib/plugins/tty.so"}
	require.NoError(t, r.Register(p))

	assert.Same(t, p, r.Find("/lib/plugins/tty"))
	assert.Same(t, p, r.Find("tty"))
	assert.Same(t, p, r.Find("tty.so"))
	assert.Nil(t, r.Find("/tty"))
	assert.Nil(t, r.Find(""))
	assert.Nil(t, r.Find("other"))
}

func TestUnregister(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.so")

	loader := newFakeLoader()
	loader.add("a.so", returns(Plugin{}))

	fl := newFakeLoop()
	r := NewRegistry(WithLoader(loader), WithEventLoop(fl))

	fail, err := r.Discover(dir)
	require.NoError(t, err)
	require.Zero(t, fail)

	p := r.Find("a")
	require.NotNil(t, p)
	assert.True(t, p.Loaded())

	// Give it a descriptor so there is a watcher to stop
	p.IO = IO{FD: 7, Fn: func(any, int, Events) {}, Flags: IORead}
	require.Zero(t, r.InitIO())
	w := fl.watchers[0]
	require.True(t, w.active)

	require.NoError(t, r.Unregister(p))
	assert.False(t, w.active)
	assert.Nil(t, r.Find("a"))
	assert.Equal(t, 1, loader.closed["a.so"])
	assert.False(t, p.Loaded())

	require.ErrorIs(t, r.Unregister(p), ErrNotRegistered)
}

func TestUnregisterStatic(t *testing.T) {
	r := NewRegistry(WithStatic())
	p := &Plugin{Name: "builtin"}
	require.NoError(t, r.Register(p))

	require.ErrorIs(t, r.Unregister(p), ErrStatic)
	assert.Same(t, p, r.Find("builtin"))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.so", "b.so", ".hidden.so", "c.so")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	loader := newFakeLoader()
	loader.add("a.so", returns(Plugin{}))
	loader.add("b.so", failing)
	loader.add("c.so", returns(Plugin{Name: "custom"}))

	r := NewRegistry(WithLoader(loader))
	fail, err := r.Discover(dir)

	assert.Equal(t, 1, fail)
	require.Error(t, err)
	assert.ErrorIs(t, err, errEntry)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "entry", le.Op)
	assert.Equal(t, filepath.Join(dir, "b.so"), le.Path)

	assert.Equal(t, []string{"a", "custom"}, names(r.Plugins()))
	assert.Equal(t, dir, r.Path())
	assert.NotContains(t, loader.opened, ".hidden.so")
	assert.NotContains(t, loader.opened, "sub")
	assert.Equal(t, 1, loader.closed["b.so"])
}

func TestDiscoverNameClashFailsVerification(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "one.so", "two.so")

	loader := newFakeLoader()
	loader.add("one.so", returns(Plugin{Name: "same"}))
	loader.add("two.so", returns(Plugin{Name: "same"}))

	r := NewRegistry(WithLoader(loader))
	fail, err := r.Discover(dir)

	assert.Equal(t, 1, fail)
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, loader.closed["two.so"])
	assert.Zero(t, loader.closed["one.so"])
}

func TestRejectedModuleIsReleased(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "one.so", "two.so")

	kept, rejected := &closerCount{}, &closerCount{}
	loader := newFakeLoader()
	loader.add("one.so", returnsWithCloser(Plugin{Name: "same"}, kept))
	loader.add("two.so", returnsWithCloser(Plugin{Name: "same"}, rejected))

	r := NewRegistry(WithLoader(loader))
	fail, _ := r.Discover(dir)

	assert.Equal(t, 1, fail)
	assert.Equal(t, 1, rejected.n)
	assert.Zero(t, kept.n)

	r.Exit()
	assert.Equal(t, 1, kept.n)
	r.Exit()
	assert.Equal(t, 1, kept.n, "release is once only")
}

func TestUnregisterReleases(t *testing.T) {
	c := &closerCount{}
	r := NewRegistry()
	p := &Plugin{Name: "res", Closer: c}
	require.NoError(t, r.Register(p))

	require.NoError(t, r.Unregister(p))
	assert.Equal(t, 1, c.n)
	assert.Nil(t, p.Closer)
}

func TestDiscoverUnreadableDir(t *testing.T) {
	r := NewRegistry(WithLoader(newFakeLoader()))
	fail, err := r.Discover(filepath.Join(t.TempDir(), "missing"))

	assert.Equal(t, 1, fail)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "discover", le.Op)
	assert.Empty(t, r.Path())
}

func TestDependenciesLoadFirst(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "pidfile.so", "netlink.so")

	loader := newFakeLoader()
	loader.add("pidfile.so", returns(Plugin{Name: "pidfile", Depends: []string{"netlink"}}))
	loader.add("netlink.so", returns(Plugin{Name: "netlink"}))

	r := NewRegistry(WithLoader(loader), WithPluginPath(dir))

	// Register directly, as a built-in would
	require.NoError(t, r.Register(&Plugin{Name: "pidfile", Depends: []string{"netlink"}}))
	assert.Equal(t, []string{"netlink", "pidfile"}, names(r.Plugins()))

	// Discover skips what is already loaded
	fail, err := r.Discover(dir)
	require.NoError(t, err)
	assert.Zero(t, fail)
	assert.Equal(t, 2, r.Len())
}

func TestMissingDependencyIsNotFatal(t *testing.T) {
	r := NewRegistry(WithLoader(newFakeLoader()), WithPluginPath(t.TempDir()))

	require.NoError(t, r.Register(&Plugin{Name: "lonely", Depends: []string{"ghost"}}))
	assert.Equal(t, []string{"lonely"}, names(r.Plugins()))

	// Without any loader at all
	r = NewRegistry()
	require.NoError(t, r.Register(&Plugin{Name: "lonely", Depends: []string{"ghost"}}))
	assert.Equal(t, 1, r.Len())
}

func TestDependencyCycle(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.so", "b.so")

	loader := newFakeLoader()
	loader.add("a.so", returns(Plugin{Name: "a", Depends: []string{"b"}}))
	loader.add("b.so", returns(Plugin{Name: "b", Depends: []string{"a"}}))

	r := NewRegistry(WithLoader(loader))
	fail, err := r.Discover(dir)

	require.NoError(t, err)
	assert.Zero(t, fail)
	assert.Equal(t, []string{"b", "a"}, names(r.Plugins()))
	assert.Empty(t, r.resolving)
}

func TestLoadedModuleReceivesHost(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "h.so")

	var got *Host
	loader := newFakeLoader()
	loader.add("h.so", func(h *Host) (*Plugin, error) {
		got = h
		return &Plugin{Hooks: [HookCount]Hook{HookBanner: {Fn: noop}}}, nil
	})

	conds := NewMemStore()
	host := &Host{Conditions: conds, RunDir: "/tmp/run"}
	r := NewRegistry(WithLoader(loader), WithHost(host))

	_, err := r.Discover(dir)
	require.NoError(t, err)
	assert.Same(t, host, got)
	assert.NotNil(t, r.Find("h"))
}

func TestExitClosesModules(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.so", "b.so")

	loader := newFakeLoader()
	loader.add("a.so", returns(Plugin{}))
	loader.add("b.so", returns(Plugin{}))

	r := NewRegistry(WithLoader(loader))
	_, err := r.Discover(dir)
	require.NoError(t, err)
	require.NoError(t, r.Register(&Plugin{Name: "builtin"}))

	r.Exit()
	assert.Equal(t, 1, loader.closed["a.so"])
	assert.Equal(t, 1, loader.closed["b.so"])

	// Exit is safe to repeat
	r.Exit()
	assert.Equal(t, 1, loader.closed["a.so"])
}

func TestGoLoaderMissingFile(t *testing.T) {
	_, err := GoLoader{}.Open(filepath.Join(t.TempDir(), "nope.so"))
	require.Error(t, err)
}
