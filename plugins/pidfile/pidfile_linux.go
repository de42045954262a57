//go:build linux

package pidfile

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	initd "github.com/axondata/go-initd"
	"github.com/axondata/go-initd/internal/iwatch"
	"github.com/axondata/go-initd/internal/logging"
)

// Name is the plugin's registered name
const Name = "pidfile"

// ErrBadPID is returned when a pidfile does not hold a positive integer
var ErrBadPID = errors.New("pidfile: invalid pid")

// Monitor watches the run directory and keeps pidfile conditions in sync
// with the files on disk. It is used from the event loop goroutine only.
type Monitor struct {
	services initd.ServiceRegistry
	conds    initd.ConditionStore
	tree     *iwatch.Tree
	runDir   string
	root     string // runDir with symlinks resolved, set by Start
	logger   *slog.Logger
}

// Option configures a Monitor
type Option func(*Monitor)

// WithLogger sets the monitor's logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithRunDir sets the directory to watch, default /run
func WithRunDir(dir string) Option {
	return func(m *Monitor) {
		m.runDir = dir
	}
}

// WithTree supplies the watch tree instead of opening a new one
func WithTree(t *iwatch.Tree) Option {
	return func(m *Monitor) {
		m.tree = t
	}
}

// New creates a Monitor. Nothing is watched until Start.
func New(services initd.ServiceRegistry, conds initd.ConditionStore, opts ...Option) (*Monitor, error) {
	if services == nil || conds == nil {
		return nil, initd.ErrInvalidArgument
	}

	m := &Monitor{
		services: services,
		conds:    conds,
		runDir:   initd.DefaultRunDir,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = logging.NewNop()
	}

	if m.tree == nil {
		t, err := iwatch.New(iwatch.WithLogger(m.logger))
		if err != nil {
			return nil, err
		}
		m.tree = t
	}

	return m, nil
}

// Plugin returns the monitor's registration record
func (m *Monitor) Plugin() *initd.Plugin {
	p := &initd.Plugin{
		Name:    Name,
		Depends: []string{"netlink"},
		IO: initd.IO{
			FD:    m.tree.FD(),
			Fn:    m.callback,
			Flags: initd.IORead,
		},
	}
	p.Hooks[initd.HookBasefsUp] = initd.Hook{Fn: m.basefsUp}
	p.Hooks[initd.HookSvcReconf] = initd.Hook{Fn: m.reconf}
	return p
}

// Tree returns the underlying watch tree
func (m *Monitor) Tree() *iwatch.Tree {
	return m.tree
}

// Start watches the resolved run directory, including subdirectories that
// already exist within the depth limit, and reports pidfiles already
// present. /run is often a symlink to /var/run or the other way around,
// so the real path is watched and events are mapped back under the
// configured one before services are looked up.
func (m *Monitor) Start() error {
	root, err := filepath.EvalSymlinks(m.runDir)
	if err != nil {
		return fmt.Errorf("resolve run dir: %w", err)
	}

	if err := m.tree.AddRoot(root); err != nil {
		return err
	}
	m.root = root

	m.tree.Scan(root, m)
	m.watchSubdirs(root)
	return nil
}

// watchSubdirs watches and scans the existing directories below dir the
// tree accepts, descending into each one it watches.
func (m *Monitor) watchSubdirs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		m.logger.Debug("failed listing directory", logging.String("dir", dir), logging.Error(err))
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m.tree.HandleDirEvent(dir, entry.Name(), iwatch.Create|iwatch.IsDir, m)
		if sub := filepath.Join(dir, entry.Name()); m.tree.Watched(sub) {
			m.watchSubdirs(sub)
		}
	}
}

// configured maps dir from below the resolved root to below the
// configured run directory. Other paths are returned unchanged.
func (m *Monitor) configured(dir string) string {
	if m.root == "" {
		return dir
	}
	rel, err := filepath.Rel(m.root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return dir
	}
	return filepath.Join(m.runDir, rel)
}

// lookup finds the service claiming dir/name, trying the path under the
// configured run directory before the watched one
func (m *Monitor) lookup(dir, name string) *initd.Service {
	if cdir := m.configured(dir); cdir != dir {
		if svc := m.services.FindByPIDFile(filepath.Join(cdir, name)); svc != nil {
			return svc
		}
	}
	return m.services.FindByPIDFile(filepath.Join(dir, name))
}

func (m *Monitor) basefsUp(any) {
	if err := m.Start(); err != nil {
		m.logger.Error("failed watching run directory", logging.String("dir", m.runDir), logging.Error(err))
	}
}

func (m *Monitor) reconf(any) {
	m.Reconcile()
}

func (m *Monitor) callback(_ any, _ int, _ initd.Events) {
	if err := m.tree.Process(m); err != nil {
		m.logger.Warn("failed processing pidfile events", logging.Error(err))
	}
}

// HandleFile implements iwatch.Handler
func (m *Monitor) HandleFile(dir, name string, mask iwatch.Mask) {
	m.Update(dir, name, mask)
}

// Update applies one file event. Files other than *.pid and pid, and
// pidfiles no service claims, are ignored. A condition change steps
// services so those waiting on it can proceed.
func (m *Monitor) Update(dir, name string, mask iwatch.Mask) {
	if !isPIDFile(name) {
		return
	}

	fn := filepath.Join(dir, name)
	svc := m.lookup(dir, name)
	if svc == nil {
		m.logger.Debug("no matching service", logging.String("pidfile", fn))
		return
	}

	cond := svc.Condition()

	switch {
	case mask.Has(iwatch.Changed):
		m.services.MarkStarted(svc)

		if svc.IsForking() {
			pid, err := readPID(fn)
			if err != nil {
				m.logger.Warn("failed reading pidfile", logging.String("pidfile", fn), logging.Error(err))
			} else {
				m.logger.Debug("forking service changed pid",
					logging.String("service", svc.Name),
					logging.Int("old", svc.PID),
					logging.Int("new", pid),
				)
				svc.PID = pid
			}
		}

		if err := m.conds.Set(cond); err != nil {
			m.logger.Error("failed setting condition", logging.String("cond", cond), logging.Error(err))
		}

	case mask.Has(iwatch.Delete):
		if err := m.conds.Clear(cond); err != nil {
			m.logger.Error("failed clearing condition", logging.String("cond", cond), logging.Error(err))
		}

	default:
		return
	}

	m.services.StepAll(initd.TypeService | initd.TypeRunTask)
}

// Reconcile reasserts the condition of every running service that is
// neither starting nor changed by a reload, then steps services so any
// that were waiting on those conditions can proceed.
func (m *Monitor) Reconcile() {
	m.services.Iterate(func(svc *initd.Service) bool {
		if !svc.IsRunning() || svc.IsChanged() || svc.IsStarting() {
			return true
		}

		cond := svc.Condition()
		if m.conds.Get(cond) == initd.CondOn {
			return true
		}

		if err := m.conds.Set(cond); err != nil {
			m.logger.Error("failed setting condition", logging.String("cond", cond), logging.Error(err))
		}
		return true
	})

	m.services.StepAll(initd.TypeService | initd.TypeRunTask)
}

// Close releases the watch tree
func (m *Monitor) Close() error {
	return m.tree.Close()
}

func isPIDFile(name string) bool {
	if name == "pid" {
		return true
	}
	ok, _ := path.Match("*.pid", name)
	return ok
}

func readPID(fn string) (int, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(string(bytes.TrimSpace(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadPID, bytes.TrimSpace(data))
	}
	return pid, nil
}
