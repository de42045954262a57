//go:build linux

package iwatch

import (
	"encoding/binary"
	"errors"

	sys "golang.org/x/sys/unix"
)

// ErrShortRead indicates a read ended inside an event record
var ErrShortRead = errors.New("iwatch: short event read")

// Event is one decoded inotify record
type Event struct {
	WD     int
	Mask   Mask
	Cookie uint32
	Name   string
}

// Decode walks the variable-length inotify_event records packed in buf.
// Each record is a fixed header followed by Len bytes of NUL padded name;
// the header's Len is used to find the next record. A record that runs
// past the end of buf invalidates the whole batch.
func Decode(buf []byte) ([]Event, error) {
	var events []Event

	for off := 0; off < len(buf); {
		if len(buf)-off < sys.SizeofInotifyEvent {
			return nil, ErrShortRead
		}

		hdr := buf[off : off+sys.SizeofInotifyEvent]
		nameLen := int(binary.NativeEndian.Uint32(hdr[12:16]))
		end := off + sys.SizeofInotifyEvent + nameLen
		if end > len(buf) {
			return nil, ErrShortRead
		}

		name := buf[off+sys.SizeofInotifyEvent : end]
		for len(name) > 0 && name[len(name)-1] == 0 {
			name = name[:len(name)-1]
		}

		events = append(events, Event{
			WD:     int(int32(binary.NativeEndian.Uint32(hdr[0:4]))),
			Mask:   Mask(binary.NativeEndian.Uint32(hdr[4:8])),
			Cookie: binary.NativeEndian.Uint32(hdr[8:12]),
			Name:   string(name),
		})
		off = end
	}

	return events, nil
}
