//go:build linux

package loop

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"time"

	sys "golang.org/x/sys/unix"

	"github.com/axondata/go-initd/internal/logging"
	"github.com/axondata/go-initd/internal/unix"
)

// maxEvents bounds how many ready descriptors one wake-up dispatches
const maxEvents = 32

// Loop is an epoll based event loop.
type Loop struct {
	epfd int
	efd  int

	// watchers is keyed by descriptor and touched only on the loop goroutine
	watchers map[int]*IO

	mu     sync.Mutex
	posted []func()
	closed bool

	logger *slog.Logger
}

// Option configures a Loop
type Option func(*Loop)

// WithLogger sets the logger used for dispatch diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates an event loop backed by epoll and an eventfd used to wake
// the loop when work is posted from other goroutines.
func New(opts ...Option) (*Loop, error) {
	epfd, err := sys.EpollCreate1(unix.EpollFlags)
	if err != nil {
		return nil, err
	}

	efd, err := sys.Eventfd(0, unix.EventfdFlags)
	if err != nil {
		_ = sys.Close(epfd)
		return nil, err
	}

	ev := sys.EpollEvent{Events: sys.EPOLLIN, Fd: int32(efd)}
	if err := sys.EpollCtl(epfd, sys.EPOLL_CTL_ADD, efd, &ev); err != nil {
		_ = sys.Close(efd)
		_ = sys.Close(epfd)
		return nil, err
	}

	l := &Loop{
		epfd:     epfd,
		efd:      efd,
		watchers: make(map[int]*IO),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.logger == nil {
		l.logger = logging.NewNop()
	}

	return l, nil
}

// IO is a descriptor watcher registered on a Loop.
type IO struct {
	loop   *Loop
	fd     int
	flags  Events
	cb     Callback
	active bool
}

// Watch registers fd with the loop and starts watching it for flags.
func (l *Loop) Watch(fd int, flags Events, cb Callback) (Watcher, error) {
	w := &IO{
		loop:  l,
		fd:    fd,
		flags: flags,
		cb:    cb,
	}
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

// FD returns the watched descriptor
func (w *IO) FD() int {
	return w.fd
}

// Start subscribes the descriptor with the loop
func (w *IO) Start() error {
	if w.active {
		return nil
	}
	if w.fd < 0 {
		return ErrBadDescriptor
	}
	if w.loop.isClosed() {
		return ErrClosed
	}

	ev := sys.EpollEvent{Events: toEpoll(w.flags), Fd: int32(w.fd)}
	err := sys.EpollCtl(w.loop.epfd, sys.EPOLL_CTL_ADD, w.fd, &ev)
	if errors.Is(err, sys.EEXIST) {
		err = sys.EpollCtl(w.loop.epfd, sys.EPOLL_CTL_MOD, w.fd, &ev)
	}
	if err != nil {
		return err
	}

	w.loop.watchers[w.fd] = w
	w.active = true
	return nil
}

// Stop unsubscribes the descriptor. A descriptor closed behind the loop's
// back has already left the epoll set, which is not an error.
func (w *IO) Stop() error {
	if !w.active {
		return nil
	}
	w.active = false

	if cur, ok := w.loop.watchers[w.fd]; ok && cur == w {
		delete(w.loop.watchers, w.fd)
	}

	err := sys.EpollCtl(w.loop.epfd, sys.EPOLL_CTL_DEL, w.fd, nil)
	if errors.Is(err, sys.EBADF) || errors.Is(err, sys.ENOENT) {
		return nil
	}
	return err
}

// Set changes descriptor and mask, then starts watching again
func (w *IO) Set(fd int, flags Events) error {
	if err := w.Stop(); err != nil {
		return err
	}
	w.fd = fd
	w.flags = flags
	return w.Start()
}

// Post queues fn to run on the loop goroutine and wakes the loop.
// It is safe to call from any goroutine.
func (l *Loop) Post(fn func()) error {
	if fn == nil {
		return nil
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.posted = append(l.posted, fn)
	l.mu.Unlock()

	return l.wake()
}

func (l *Loop) wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := sys.Write(l.efd, buf[:])
	if errors.Is(err, sys.EAGAIN) {
		// counter saturated, a wake-up is already pending
		return nil
	}
	return err
}

func (l *Loop) drainWake() {
	var buf [8]byte
	for {
		if _, err := sys.Read(l.efd, buf[:]); err != nil {
			return
		}
	}
}

func (l *Loop) runPosted() {
	l.mu.Lock()
	work := l.posted
	l.posted = nil
	l.mu.Unlock()

	for _, fn := range work {
		l.safeCall(fn)
	}
}

func (l *Loop) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop handler panicked", slog.Any("panic", r))
		}
	}()
	fn()
}

// RunOnce waits up to timeout for ready descriptors and dispatches them.
// A negative timeout waits indefinitely.
func (l *Loop) RunOnce(timeout time.Duration) error {
	if l.isClosed() {
		return ErrClosed
	}

	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}

	var events [maxEvents]sys.EpollEvent
	n, err := sys.EpollWait(l.epfd, events[:], msec)
	if err != nil {
		if errors.Is(err, sys.EINTR) {
			return nil
		}
		return err
	}

	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		if fd == l.efd {
			l.drainWake()
			l.runPosted()
			continue
		}

		// Earlier callbacks in this batch may have stopped or replaced it
		w, ok := l.watchers[fd]
		if !ok || !w.active || w.cb == nil {
			continue
		}

		mask := fromEpoll(events[i].Events)
		l.safeCall(func() { w.cb(w, mask) })
	}

	return nil
}

// Run dispatches events until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = l.wake() })
	defer stop()

	for ctx.Err() == nil {
		if err := l.RunOnce(-1); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the epoll and eventfd descriptors. Watched descriptors
// are owned by their watchers and left open.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.posted = nil
	l.mu.Unlock()

	errE := sys.Close(l.efd)
	errP := sys.Close(l.epfd)
	return errors.Join(errE, errP)
}

func (l *Loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func toEpoll(e Events) uint32 {
	var m uint32
	if e&Read != 0 {
		m |= sys.EPOLLIN
	}
	if e&Write != 0 {
		m |= sys.EPOLLOUT
	}
	if e&Priority != 0 {
		m |= sys.EPOLLPRI
	}
	return m
}

func fromEpoll(m uint32) Events {
	var e Events
	if m&sys.EPOLLIN != 0 {
		e |= Read
	}
	if m&sys.EPOLLOUT != 0 {
		e |= Write
	}
	if m&sys.EPOLLPRI != 0 {
		e |= Priority
	}
	if m&sys.EPOLLERR != 0 {
		e |= Error
	}
	if m&sys.EPOLLHUP != 0 {
		e |= Hangup
	}
	return e
}
