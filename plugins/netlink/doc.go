// Package netlink asserts a net/<iface>/exist condition for every network
// interface the kernel knows about, tracking hotplug through kernel
// uevents read on the daemon's event loop.
package netlink
