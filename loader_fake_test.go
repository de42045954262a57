package initd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fakeLoader serves modules from a map keyed by file base name
type fakeLoader struct {
	entries map[string]func(*Host) (*Plugin, error)
	opened  []string
	closed  map[string]int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		entries: make(map[string]func(*Host) (*Plugin, error)),
		closed:  make(map[string]int),
	}
}

func (l *fakeLoader) add(file string, fn func(*Host) (*Plugin, error)) {
	l.entries[file] = fn
}

func (l *fakeLoader) Open(path string) (Module, error) {
	base := filepath.Base(path)
	l.opened = append(l.opened, base)
	fn, ok := l.entries[base]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &fakeModule{loader: l, name: base, entry: fn}, nil
}

type fakeModule struct {
	loader *fakeLoader
	name   string
	entry  func(*Host) (*Plugin, error)
}

func (m *fakeModule) Entry(h *Host) (*Plugin, error) {
	return m.entry(h)
}

func (m *fakeModule) Close() error {
	m.loader.closed[m.name]++
	return nil
}

// returns builds an entry point returning a fresh copy of p
func returns(p Plugin) func(*Host) (*Plugin, error) {
	return func(*Host) (*Plugin, error) {
		cp := p
		return &cp, nil
	}
}

// closerCount counts Close calls
type closerCount struct {
	n int
}

func (c *closerCount) Close() error {
	c.n++
	return nil
}

// returnsWithCloser is like returns but hands each record a Closer
func returnsWithCloser(p Plugin, c *closerCount) func(*Host) (*Plugin, error) {
	return func(*Host) (*Plugin, error) {
		cp := p
		cp.Closer = c
		return &cp, nil
	}
}

var errEntry = errors.New("entry failed")

func failing(*Host) (*Plugin, error) {
	return nil, errEntry
}

// touch creates empty module files in dir
func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}
}

func names(plugins []*Plugin) []string {
	out := make([]string, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, p.Name)
	}
	return out
}
