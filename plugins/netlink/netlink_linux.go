//go:build linux

package netlink

import (
	"errors"
	"log/slog"
	"os"

	"github.com/pilebones/go-udev/netlink"

	initd "github.com/axondata/go-initd"
	"github.com/axondata/go-initd/internal/logging"
)

// Name is the plugin's registered name
const Name = "netlink"

// DefaultSysfsNet lists the interfaces present at boot
const DefaultSysfsNet = "/sys/class/net"

// ErrNotConnected is returned when reading before Connect
var ErrNotConnected = errors.New("netlink: not connected")

// Condition returns the name of the condition asserted while iface exists
func Condition(iface string) string {
	return "net/" + iface + "/exist"
}

// Monitor tracks network interfaces. It is used from the event loop
// goroutine only.
type Monitor struct {
	conds   initd.ConditionStore
	conn    *netlink.UEventConn
	matcher netlink.Matcher
	sysfs   string
	logger  *slog.Logger
}

// Option configures a Monitor
type Option func(*Monitor)

// WithLogger sets the monitor's logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithSysfs sets the directory listing interfaces present at boot
func WithSysfs(dir string) Option {
	return func(m *Monitor) {
		m.sysfs = dir
	}
}

// New creates a Monitor. Call Connect before registering its plugin.
func New(conds initd.ConditionStore, opts ...Option) (*Monitor, error) {
	if conds == nil {
		return nil, initd.ErrInvalidArgument
	}

	m := &Monitor{
		conds:   conds,
		sysfs:   DefaultSysfsNet,
		matcher: netMatcher(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = logging.NewNop()
	}

	return m, nil
}

// netMatcher accepts interfaces appearing and disappearing
func netMatcher() netlink.Matcher {
	action := "^(add|remove)$"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^net$",
		},
	})
	return rules
}

// Connect opens the kernel uevent socket
func (m *Monitor) Connect() error {
	if m.conn != nil {
		return nil
	}
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.KernelEvent); err != nil {
		return err
	}
	m.conn = conn
	return nil
}

// Plugin returns the monitor's registration record. Without a connection
// the record carries no descriptor and only the boot scan runs.
func (m *Monitor) Plugin() *initd.Plugin {
	p := &initd.Plugin{Name: Name}
	p.Hooks[initd.HookBasefsUp] = initd.Hook{Fn: m.basefsUp}

	if m.conn != nil {
		p.IO = initd.IO{
			FD:    m.conn.Fd,
			Fn:    m.callback,
			Flags: initd.IORead,
		}
	}
	return p
}

func (m *Monitor) basefsUp(any) {
	if err := m.Scan(); err != nil {
		m.logger.Warn("failed listing network interfaces", logging.String("dir", m.sysfs), logging.Error(err))
	}
}

// Scan asserts the condition of every interface present now
func (m *Monitor) Scan() error {
	entries, err := os.ReadDir(m.sysfs)
	if err != nil {
		return err
	}

	for _, e := range entries {
		m.set(e.Name())
	}
	return nil
}

func (m *Monitor) callback(_ any, _ int, _ initd.Events) {
	if err := m.Read(); err != nil {
		m.logger.Warn("failed reading uevent", logging.Error(err))
	}
}

// Read receives one uevent and applies it
func (m *Monitor) Read() error {
	if m.conn == nil {
		return ErrNotConnected
	}

	ev, err := m.conn.ReadUEvent()
	if err != nil {
		return err
	}
	m.Handle(*ev)
	return nil
}

// Handle applies one uevent. Events for other subsystems are ignored.
func (m *Monitor) Handle(ev netlink.UEvent) {
	if !m.matcher.Evaluate(ev) {
		return
	}

	iface := ev.Env["INTERFACE"]
	if iface == "" {
		m.logger.Debug("ignoring uevent without interface", logging.String("kobj", ev.KObj))
		return
	}

	switch ev.Action {
	case netlink.ADD:
		m.set(iface)
	case netlink.REMOVE:
		cond := Condition(iface)
		if err := m.conds.Clear(cond); err != nil {
			m.logger.Error("failed clearing condition", logging.String("cond", cond), logging.Error(err))
			return
		}
		m.logger.Debug("interface removed", logging.String("iface", iface))
	}
}

func (m *Monitor) set(iface string) {
	cond := Condition(iface)
	if err := m.conds.Set(cond); err != nil {
		m.logger.Error("failed setting condition", logging.String("cond", cond), logging.Error(err))
		return
	}
	m.logger.Debug("interface exists", logging.String("iface", iface))
}

// Close closes the uevent socket
func (m *Monitor) Close() error {
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}
