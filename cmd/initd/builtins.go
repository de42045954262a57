package main

import (
	"log/slog"

	initd "github.com/axondata/go-initd"
)

// builtinDeps is what the linked-in plugins are built from
type builtinDeps struct {
	conds    initd.ConditionStore
	services initd.ServiceRegistry
	runDir   string
	logger   *slog.Logger

	// connect opens the kernel uevent socket
	connect bool
}
