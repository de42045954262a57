package initd

import (
	"github.com/axondata/go-initd/internal/loop"
)

// Plugin and module constants
const (
	// MaxDepends is the most dependencies a plugin may declare
	MaxDepends = 10

	// ModuleExt is the file extension of loadable plugin modules
	ModuleExt = ".so"

	// SourceExt is stripped from names derived from source files
	SourceExt = ".go"

	// EntrySymbol is the exported function every loadable module provides.
	// Its type must be func(*Host) (*Plugin, error).
	EntrySymbol = "NewPlugin"

	// UnknownName is assigned to plugins whose name cannot be derived
	UnknownName = "unknown"
)

// Default locations
const (
	// DefaultPluginDir is scanned for loadable modules at startup
	DefaultPluginDir = "/usr/lib/initd/plugins"

	// DefaultRunDir is the runtime directory watched for pidfiles
	DefaultRunDir = "/run"

	// DefaultCondDir holds the file backed condition store
	DefaultCondDir = "/run/initd/cond"
)

// File modes
const (
	// DirMode is the default mode for created directories
	DirMode = 0o755

	// FileMode is the default mode for created files
	FileMode = 0o644
)

// Events is a readiness mask for plugin descriptors
type Events = loop.Events

// Readiness bits a plugin may request or receive
const (
	IORead   = loop.Read
	IOWrite  = loop.Write
	IOPri    = loop.Priority
	IOError  = loop.Error
	IOHangup = loop.Hangup
)
