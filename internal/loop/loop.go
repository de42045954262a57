// Package loop implements the daemon's single-threaded event loop.
//
// Every descriptor callback and every function handed to Post runs on the
// goroutine that calls Run. Handlers run to completion before the next
// ready descriptor is dispatched, so state touched only from callbacks
// needs no locking.
package loop

import (
	"errors"
	"strings"
)

// Events is a readiness mask for a watched descriptor.
type Events uint32

const (
	// Read reports the descriptor is readable
	Read Events = 1 << iota
	// Write reports the descriptor is writable
	Write
	// Priority reports urgent data
	Priority
	// Error reports an error condition on the descriptor
	Error
	// Hangup reports the peer closed its end
	Hangup
)

// Event mask string constants
const (
	eventsNoneStr     = "none"
	eventsReadStr     = "read"
	eventsWriteStr    = "write"
	eventsPriorityStr = "pri"
	eventsErrorStr    = "error"
	eventsHangupStr   = "hup"
)

// String returns a '|' separated list of the set event bits
func (e Events) String() string {
	if e == 0 {
		return eventsNoneStr
	}

	var parts []string
	if e&Read != 0 {
		parts = append(parts, eventsReadStr)
	}
	if e&Write != 0 {
		parts = append(parts, eventsWriteStr)
	}
	if e&Priority != 0 {
		parts = append(parts, eventsPriorityStr)
	}
	if e&Error != 0 {
		parts = append(parts, eventsErrorStr)
	}
	if e&Hangup != 0 {
		parts = append(parts, eventsHangupStr)
	}
	return strings.Join(parts, "|")
}

var (
	// ErrClosed is returned when using a loop after Close
	ErrClosed = errors.New("loop: closed")

	// ErrNotSupported is returned on platforms without an epoll backend
	ErrNotSupported = errors.New("loop: not supported on this platform")

	// ErrBadDescriptor is returned when watching a negative descriptor
	ErrBadDescriptor = errors.New("loop: bad descriptor")
)

// Watcher is a descriptor subscription on a loop.
type Watcher interface {
	// FD returns the descriptor currently watched
	FD() int
	// Start (re)activates the subscription
	Start() error
	// Stop deactivates the subscription; stopping twice is a no-op
	Stop() error
	// Set replaces descriptor and mask and starts watching again
	Set(fd int, flags Events) error
}

// Callback is invoked on the loop goroutine when a watched descriptor is ready.
type Callback func(w Watcher, events Events)
