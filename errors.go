package initd

import (
	"errors"
	"fmt"
)

// Common errors returned by registry operations
var (
	// ErrInvalidArgument indicates a nil plugin or malformed name
	ErrInvalidArgument = errors.New("initd: invalid argument")

	// ErrStatic indicates unregistration was attempted on a static registry
	ErrStatic = errors.New("initd: plugins cannot be unloaded in a static build")

	// ErrNotRegistered indicates a plugin is not, or did not become, registered
	ErrNotRegistered = errors.New("initd: plugin not registered")

	// ErrNoEntry indicates a module has no usable entry point
	ErrNoEntry = errors.New("initd: module has no entry point")

	// ErrNoLoader indicates a module load was attempted without a Loader
	ErrNoLoader = errors.New("initd: no module loader")

	// ErrNoEventLoop indicates an I/O plugin was initialized without an event loop
	ErrNoEventLoop = errors.New("initd: no event loop")
)

// LoadError represents a failure loading or registering one plugin module
type LoadError struct {
	// Op is the load phase that failed: discover, open, entry or register
	Op string
	// Path is the module or directory involved
	Path string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *LoadError) Error() string {
	return fmt.Sprintf("initd %s %q: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *LoadError) Unwrap() error {
	return e.Err
}

// MultiError aggregates multiple errors from bulk operations
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred", len(m.Errors))
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

// Unwrap exposes the accumulated errors to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}
