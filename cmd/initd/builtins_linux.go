//go:build linux

package main

import (
	"fmt"
	"io"

	initd "github.com/axondata/go-initd"
	"github.com/axondata/go-initd/internal/logging"
	"github.com/axondata/go-initd/plugins/netlink"
	"github.com/axondata/go-initd/plugins/pidfile"
)

// registerBuiltins registers the linked-in plugins, dependencies first.
// The returned closers release their descriptors.
func registerBuiltins(reg *initd.Registry, deps builtinDeps) ([]io.Closer, error) {
	var closers []io.Closer

	nl, err := netlink.New(deps.conds,
		netlink.WithLogger(logging.NewComponentLogger(deps.logger, netlink.Name)),
	)
	if err != nil {
		return closers, fmt.Errorf("netlink plugin: %w", err)
	}
	if deps.connect {
		if err := nl.Connect(); err != nil {
			deps.logger.Warn("kernel uevents unavailable, interface hotplug not tracked", logging.Error(err))
		}
	}
	closers = append(closers, nl)
	if err := reg.Register(nl.Plugin()); err != nil {
		return closers, err
	}

	pf, err := pidfile.New(deps.services, deps.conds,
		pidfile.WithLogger(logging.NewComponentLogger(deps.logger, pidfile.Name)),
		pidfile.WithRunDir(deps.runDir),
	)
	if err != nil {
		return closers, fmt.Errorf("pidfile plugin: %w", err)
	}
	closers = append(closers, pf)
	if err := reg.Register(pf.Plugin()); err != nil {
		return closers, err
	}

	return closers, nil
}
