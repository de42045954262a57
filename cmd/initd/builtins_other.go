//go:build !linux

package main

import (
	"io"

	initd "github.com/axondata/go-initd"
)

// registerBuiltins has nothing to register off Linux
func registerBuiltins(_ *initd.Registry, _ builtinDeps) ([]io.Closer, error) {
	return nil, nil
}
