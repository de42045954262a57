package initd

// Version is the current version of the go-initd library
const Version = "1.0.0"

// VersionInfo contains detailed version information
type VersionInfo struct {
	// Version is the semantic version
	Version string
	// HookCount is the number of hook points modules are built against
	HookCount int
	// EntrySymbol is the symbol loadable modules must export
	EntrySymbol string
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	return VersionInfo{
		Version:     Version,
		HookCount:   int(HookCount),
		EntrySymbol: EntrySymbol,
	}
}
