package initd

import (
	"strings"
	"sync"
)

// CondState is the level of a named condition
type CondState int

const (
	// CondOff means the condition is not asserted
	CondOff CondState = iota
	// CondOn means the condition is asserted
	CondOn
	// CondUnknown means the condition's state cannot be determined
	CondUnknown
)

// Condition state string constants
const (
	condOffStr     = "off"
	condOnStr      = "on"
	condUnknownStr = "unknown"
)

// String returns the string representation of the state
func (s CondState) String() string {
	switch s {
	case CondOff:
		return condOffStr
	case CondOn:
		return condOnStr
	default:
		return condUnknownStr
	}
}

// ConditionStore holds named, level triggered conditions services wait on.
// Set and Clear are idempotent.
type ConditionStore interface {
	Set(name string) error
	Clear(name string) error
	Get(name string) CondState
	// SetOneshot asserts a condition that marks an event having happened
	// rather than a level that can drop again
	SetOneshot(name string) error
}

// validCondName rejects names that would escape a condition namespace
func validCondName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// MemStore is an in-memory ConditionStore
type MemStore struct {
	mu      sync.Mutex
	conds   map[string]bool
	oneshot map[string]bool
}

// NewMemStore creates an empty MemStore
func NewMemStore() *MemStore {
	return &MemStore{
		conds:   make(map[string]bool),
		oneshot: make(map[string]bool),
	}
}

// Set asserts name
func (m *MemStore) Set(name string) error {
	if !validCondName(name) {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conds[name] = true
	return nil
}

// Clear deasserts name
func (m *MemStore) Clear(name string) error {
	if !validCondName(name) {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conds, name)
	return nil
}

// Get returns the state of name
func (m *MemStore) Get(name string) CondState {
	if !validCondName(name) {
		return CondUnknown
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conds[name] {
		return CondOn
	}
	return CondOff
}

// SetOneshot asserts name and records it as one-shot
func (m *MemStore) SetOneshot(name string) error {
	if err := m.Set(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oneshot[name] = true
	return nil
}

// Oneshot reports whether name was asserted with SetOneshot
func (m *MemStore) Oneshot(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.oneshot[name]
}
