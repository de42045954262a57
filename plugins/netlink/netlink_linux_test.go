//go:build linux

package netlink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pilebones/go-udev/netlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	initd "github.com/axondata/go-initd"
)

func newMonitor(t *testing.T, opts ...Option) (*Monitor, *initd.MemStore) {
	t.Helper()
	store := initd.NewMemStore()
	m, err := New(store, opts...)
	require.NoError(t, err)
	return m, store
}

func TestHandle(t *testing.T) {
	m, store := newMonitor(t)

	m.Handle(netlink.UEvent{
		Action: netlink.ADD,
		KObj:   "/devices/virtual/net/wg0",
		Env:    map[string]string{"SUBSYSTEM": "net", "INTERFACE": "wg0"},
	})
	assert.Equal(t, initd.CondOn, store.Get("net/wg0/exist"))

	// Other subsystems and actions are ignored
	m.Handle(netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"SUBSYSTEM": "block", "INTERFACE": "wg0"},
	})
	m.Handle(netlink.UEvent{
		Action: netlink.CHANGE,
		Env:    map[string]string{"SUBSYSTEM": "net", "INTERFACE": "wg0"},
	})
	assert.Equal(t, initd.CondOn, store.Get("net/wg0/exist"))

	m.Handle(netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"SUBSYSTEM": "net", "INTERFACE": "wg0"},
	})
	assert.Equal(t, initd.CondOff, store.Get("net/wg0/exist"))
}

// recordingStore remembers every condition set
type recordingStore struct {
	*initd.MemStore
	set []string
}

func (r *recordingStore) Set(name string) error {
	r.set = append(r.set, name)
	return r.MemStore.Set(name)
}

func TestHandleWithoutInterface(t *testing.T) {
	store := &recordingStore{MemStore: initd.NewMemStore()}
	m, err := New(store)
	require.NoError(t, err)

	m.Handle(netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"SUBSYSTEM": "net"},
	})
	assert.Empty(t, store.set)
}

func TestScan(t *testing.T) {
	sysfs := t.TempDir()
	for _, iface := range []string{"lo", "eth0"} {
		require.NoError(t, os.Mkdir(filepath.Join(sysfs, iface), 0o755))
	}

	m, store := newMonitor(t, WithSysfs(sysfs))
	require.NoError(t, m.Scan())

	assert.Equal(t, initd.CondOn, store.Get(Condition("lo")))
	assert.Equal(t, initd.CondOn, store.Get(Condition("eth0")))

	m, _ = newMonitor(t, WithSysfs(filepath.Join(sysfs, "missing")))
	require.Error(t, m.Scan())
}

func TestPluginWithoutConnection(t *testing.T) {
	m, _ := newMonitor(t)
	p := m.Plugin()

	assert.Equal(t, Name, p.Name)
	assert.False(t, p.HasIO())
	assert.NotNil(t, p.Hooks[initd.HookBasefsUp].Fn)
	require.ErrorIs(t, m.Read(), ErrNotConnected)
	require.NoError(t, m.Close())
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, initd.ErrInvalidArgument)
}
