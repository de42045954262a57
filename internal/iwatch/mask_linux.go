//go:build linux

package iwatch

import (
	"strings"

	sys "golang.org/x/sys/unix"
)

// Mask is an inotify event mask
type Mask uint32

const (
	Create  Mask = sys.IN_CREATE
	Delete  Mask = sys.IN_DELETE
	Attrib  Mask = sys.IN_ATTRIB
	Modify  Mask = sys.IN_MODIFY
	MovedTo Mask = sys.IN_MOVED_TO
	IsDir   Mask = sys.IN_ISDIR
	Ignored Mask = sys.IN_IGNORED
	// Overflow is reported with watch id -1 when the kernel queue overflowed
	Overflow Mask = sys.IN_Q_OVERFLOW

	// Changed covers every mask meaning a file was written or appeared
	Changed = Create | Attrib | Modify | MovedTo

	// watchMask is subscribed for every directory in the tree
	watchMask = Create | Delete | Attrib | Modify | MovedTo
)

// Has reports whether any bit of m is set in mask
func (mask Mask) Has(m Mask) bool {
	return mask&m != 0
}

// String returns a '|' separated list of the known bits set
func (mask Mask) String() string {
	names := []struct {
		bit  Mask
		name string
	}{
		{Create, "create"},
		{Delete, "delete"},
		{Attrib, "attrib"},
		{Modify, "modify"},
		{MovedTo, "moved_to"},
		{IsDir, "isdir"},
		{Ignored, "ignored"},
		{Overflow, "overflow"},
	}

	var parts []string
	for _, n := range names {
		if mask&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
