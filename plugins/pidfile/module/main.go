//go:build linux

// Command module is the pidfile monitor as a loadable plugin:
//
//	go build -buildmode=plugin -o pidfile.so ./plugins/pidfile/module
package main

import (
	initd "github.com/axondata/go-initd"
	"github.com/axondata/go-initd/internal/logging"
	"github.com/axondata/go-initd/plugins/pidfile"
)

// NewPlugin is looked up by the daemon's loader
func NewPlugin(h *initd.Host) (*initd.Plugin, error) {
	m, err := pidfile.New(h.Services, h.Conditions,
		pidfile.WithLogger(logging.NewComponentLogger(h.Logger, pidfile.Name)),
		pidfile.WithRunDir(h.RunDir),
	)
	if err != nil {
		return nil, err
	}
	p := m.Plugin()
	p.Closer = m
	return p, nil
}

// main is unused in -buildmode=plugin builds
func main() {}
