//go:build linux

// Package unix provides platform-specific Unix constants.
package unix

import sys "golang.org/x/sys/unix"

// InotifyFlags are passed to inotify_init1 for watch tree descriptors.
// Reads must never block the event loop.
const InotifyFlags = sys.IN_NONBLOCK | sys.IN_CLOEXEC

// EpollFlags are passed to epoll_create1 for the event loop.
const EpollFlags = sys.EPOLL_CLOEXEC

// EventfdFlags are passed to eventfd for the loop's wake-up descriptor.
const EventfdFlags = sys.EFD_NONBLOCK | sys.EFD_CLOEXEC

// NameMax is the longest file name the kernel reports in a single event.
const NameMax = sys.NAME_MAX
