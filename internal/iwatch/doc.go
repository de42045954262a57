// Package iwatch maintains a flat, depth-bounded set of inotify directory
// watches and decodes the kernel's packed event records.
//
// A Tree has one root. Directories below the root are watched only up to
// MaxDepth path segments, so a runaway directory hierarchy cannot exhaust
// the kernel's watch table. The Tree is not safe for concurrent use; it is
// meant to be driven from a single event loop goroutine.
package iwatch
