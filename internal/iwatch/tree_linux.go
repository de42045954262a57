//go:build linux

package iwatch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	sys "golang.org/x/sys/unix"

	"github.com/axondata/go-initd/internal/logging"
	"github.com/axondata/go-initd/internal/unix"
)

// MaxDepth is the number of path segments allowed below the root
const MaxDepth = 2

// maxBatch is how many maximum-size records one read may return
const maxBatch = 8

// bufSize bounds the per wake-up read buffer
const bufSize = maxBatch * (sys.SizeofInotifyEvent + unix.NameMax + 1)

var (
	// ErrTooDeep is returned by Add for paths more than MaxDepth below the root
	ErrTooDeep = errors.New("iwatch: path too deep")

	// ErrOutsideRoot is returned by Add for paths not below the root
	ErrOutsideRoot = errors.New("iwatch: path outside root")

	// ErrNoRoot is returned by Add before a root has been registered
	ErrNoRoot = errors.New("iwatch: no root")
)

// DefaultPatterns are the file names reported when scanning a new directory
var DefaultPatterns = []string{"*.pid", "pid"}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufSize)
		return &b
	},
}

// Handler receives file events routed by the tree.
type Handler interface {
	HandleFile(dir, name string, mask Mask)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(dir, name string, mask Mask)

// HandleFile calls f
func (f HandlerFunc) HandleFile(dir, name string, mask Mask) {
	f(dir, name, mask)
}

// Tree is a path keyed set of inotify directory watches.
type Tree struct {
	fd       int
	root     string
	patterns []string
	paths    map[string]int
	wds      map[int]string
	logger   *slog.Logger
}

// Option configures a Tree
type Option func(*Tree)

// WithLogger sets the tree's logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tree) {
		t.logger = logger
	}
}

// WithPatterns sets the file name patterns matched when scanning a new
// directory. Patterns use path.Match syntax.
func WithPatterns(patterns ...string) Option {
	return func(t *Tree) {
		t.patterns = patterns
	}
}

// WithRoot sets the root without adding a watch for it
func WithRoot(root string) Option {
	return func(t *Tree) {
		t.root = filepath.Clean(root)
	}
}

// New opens an inotify instance.
func New(opts ...Option) (*Tree, error) {
	fd, err := sys.InotifyInit1(unix.InotifyFlags)
	if err != nil {
		return nil, fmt.Errorf("inotify init: %w", err)
	}

	t := &Tree{
		fd:       fd,
		patterns: DefaultPatterns,
		paths:    make(map[string]int),
		wds:      make(map[int]string),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.logger == nil {
		t.logger = logging.NewNop()
	}

	return t, nil
}

// FD returns the inotify descriptor to poll for readability
func (t *Tree) FD() int {
	return t.fd
}

// Root returns the configured root, empty until set
func (t *Tree) Root() string {
	return t.root
}

// Len returns the number of active watches
func (t *Tree) Len() int {
	return len(t.paths)
}

// Watched reports whether path has an active watch
func (t *Tree) Watched(p string) bool {
	_, ok := t.paths[filepath.Clean(p)]
	return ok
}

// AddRoot makes root the tree's root and watches it.
func (t *Tree) AddRoot(root string) error {
	t.root = filepath.Clean(root)
	return t.Add(t.root)
}

// Add watches a directory. Adding a watched path is a no-op.
func (t *Tree) Add(p string) error {
	p = filepath.Clean(p)
	if _, ok := t.paths[p]; ok {
		return nil
	}

	if err := t.checkDepth(p); err != nil {
		t.logger.Debug("not watching path", logging.String("path", p), logging.Error(err))
		return err
	}

	wd, err := sys.InotifyAddWatch(t.fd, p, uint32(watchMask)|sys.IN_ONLYDIR)
	if err != nil {
		return fmt.Errorf("inotify watch %s: %w", p, err)
	}

	// The kernel hands back the existing id for an inode watched under
	// another name; keep the newest path for it.
	if old, ok := t.wds[wd]; ok {
		delete(t.paths, old)
	}

	t.paths[p] = wd
	t.wds[wd] = p
	t.logger.Debug("watching directory", logging.String("path", p), logging.Int("wd", wd))
	return nil
}

// Remove drops the watch for path. Removing an unwatched path is a no-op.
func (t *Tree) Remove(p string) error {
	p = filepath.Clean(p)
	wd, ok := t.paths[p]
	if !ok {
		return nil
	}

	delete(t.paths, p)
	delete(t.wds, wd)
	t.logger.Debug("removed watch", logging.String("path", p), logging.Int("wd", wd))

	// A deleted directory loses its watch in the kernel before we hear of it
	if _, err := sys.InotifyRmWatch(t.fd, uint32(wd)); err != nil && !errors.Is(err, sys.EINVAL) {
		return fmt.Errorf("inotify rm watch %s: %w", p, err)
	}
	return nil
}

func (t *Tree) checkDepth(p string) error {
	if t.root == "" {
		return ErrNoRoot
	}
	if p == t.root {
		return nil
	}

	prefix := t.root
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	rel, ok := strings.CutPrefix(p, prefix)
	if !ok || rel == "" {
		return ErrOutsideRoot
	}

	if strings.Count(rel, "/")+1 > MaxDepth {
		return ErrTooDeep
	}
	return nil
}

// HandleDirEvent reacts to a subdirectory of parent being created or
// deleted. A new directory is watched and then scanned, so files written
// before the watch existed are reported once each through h.
func (t *Tree) HandleDirEvent(parent, name string, mask Mask, h Handler) {
	p := filepath.Join(parent, name)

	switch {
	case mask.Has(Create):
		if t.Watched(p) {
			return
		}
		if err := t.Add(p); err != nil {
			return
		}
		t.Scan(p, h)

	case mask.Has(Delete):
		if err := t.Remove(p); err != nil {
			t.logger.Warn("failed removing watch", logging.String("path", p), logging.Error(err))
		}
	}
}

// Scan reports every file in dir matching the tree's patterns to h as a
// create event.
func (t *Tree) Scan(dir string, h Handler) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.logger.Debug("scan failed", logging.String("path", dir), logging.Error(err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !t.matches(entry.Name()) {
			continue
		}
		t.logger.Debug("scan found file", logging.String("path", filepath.Join(dir, entry.Name())))
		h.HandleFile(dir, entry.Name(), Create)
	}
}

func (t *Tree) matches(name string) bool {
	for _, pattern := range t.patterns {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Process performs one non-blocking read of the inotify descriptor and
// routes the decoded events. Nothing pending is not an error.
func (t *Tree) Process(h Handler) error {
	bp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bp)
	buf := *bp

	n, err := sys.Read(t.fd, buf)
	if err != nil {
		if errors.Is(err, sys.EAGAIN) || errors.Is(err, sys.EINTR) {
			return nil
		}
		t.logger.Error("invalid inotify read", logging.Error(err))
		return err
	}
	if n <= 0 {
		t.logger.Error("invalid inotify read", logging.Int("bytes", n))
		return ErrShortRead
	}

	return t.dispatch(buf[:n], h)
}

func (t *Tree) dispatch(buf []byte, h Handler) error {
	events, err := Decode(buf)
	if err != nil {
		t.logger.Error("discarding inotify batch", logging.Int("bytes", len(buf)), logging.Error(err))
		return err
	}

	for _, ev := range events {
		if ev.Mask == 0 {
			continue
		}
		if ev.Mask.Has(Overflow) {
			t.logger.Warn("inotify queue overflow, events lost")
			continue
		}

		dir, ok := t.wds[ev.WD]
		if !ok {
			continue
		}

		t.logger.Debug("inotify event",
			logging.String("dir", dir),
			logging.String("name", ev.Name),
			logging.String("mask", ev.Mask.String()),
		)

		if ev.Mask.Has(IsDir) {
			t.HandleDirEvent(dir, ev.Name, ev.Mask, h)
			continue
		}

		if ev.Name != "" && ev.Mask.Has(Changed|Delete) {
			h.HandleFile(dir, ev.Name, ev.Mask)
		}
	}

	return nil
}

// Close removes all watches and closes the inotify descriptor.
func (t *Tree) Close() error {
	if t.fd < 0 {
		return nil
	}
	for p := range t.paths {
		_ = t.Remove(p)
	}
	err := sys.Close(t.fd)
	t.fd = -1
	return err
}
