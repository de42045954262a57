// Package pidfile maps pidfiles under the run directory to service
// conditions.
//
// When a service's pidfile appears or is touched the service is marked
// started and its condition, pid/<name>[:<id>], is asserted. Removing the
// pidfile clears the condition. The run directory and its subdirectories,
// to a bounded depth, are watched with inotify on the daemon's event loop.
package pidfile
