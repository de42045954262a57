package initd

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
)

// ServiceType classifies a supervised process. Types are bits so a set of
// them can be stepped at once.
type ServiceType int

const (
	// TypeService is a long running daemon, respawned when it exits
	TypeService ServiceType = 1 << iota
	// TypeTask runs once to completion per runlevel
	TypeTask
	// TypeRun runs once and blocks the runlevel until done
	TypeRun
	// TypeSysv is a SysV init script
	TypeSysv

	// TypeRunTask selects both one-shot kinds
	TypeRunTask = TypeRun | TypeTask
)

// Service type string constants
const (
	typeServiceStr = "service"
	typeTaskStr    = "task"
	typeRunStr     = "run"
	typeSysvStr    = "sysv"
	typeUnknownStr = "unknown"
)

// String returns the string representation of a single type
func (t ServiceType) String() string {
	switch t {
	case TypeService:
		return typeServiceStr
	case TypeTask:
		return typeTaskStr
	case TypeRun:
		return typeRunStr
	case TypeSysv:
		return typeSysvStr
	default:
		return typeUnknownStr
	}
}

// ParseServiceType parses a type name as written in configuration
func ParseServiceType(s string) (ServiceType, error) {
	switch s {
	case typeServiceStr, "":
		return TypeService, nil
	case typeTaskStr:
		return TypeTask, nil
	case typeRunStr:
		return TypeRun, nil
	case typeSysvStr:
		return TypeSysv, nil
	default:
		return 0, fmt.Errorf("%w: service type %q", ErrInvalidArgument, s)
	}
}

// ServiceState is the supervision state of a service
type ServiceState int

const (
	// StateHalted means the service is not running
	StateHalted ServiceState = iota
	// StateRunning means the process has been started
	StateRunning
	// StateStopping means the process is being stopped
	StateStopping
)

// Service state string constants
const (
	stateHaltedStr   = "halted"
	stateRunningStr  = "running"
	stateStoppingStr = "stopping"
	stateUnknownStr  = "unknown"
)

// String returns the string representation of the state
func (s ServiceState) String() string {
	switch s {
	case StateHalted:
		return stateHaltedStr
	case StateRunning:
		return stateRunningStr
	case StateStopping:
		return stateStoppingStr
	default:
		return stateUnknownStr
	}
}

// Service is one supervised process as seen by plugins
type Service struct {
	Name    string
	ID      string
	Type    ServiceType
	PIDFile string
	// Forking services daemonize, so the pid they were started with is
	// not the pid of the daemon; the pidfile is authoritative.
	Forking bool
	PID     int

	state    ServiceState
	starting bool
	changed  bool
}

// Condition returns the name of the condition asserted while the service's
// pidfile exists: pid/<name>, or pid/<name>:<id> for instanced services.
func (s *Service) Condition() string {
	if s.ID != "" {
		return "pid/" + s.Name + ":" + s.ID
	}
	return "pid/" + s.Name
}

// IsForking reports whether the service daemonizes
func (s *Service) IsForking() bool {
	return s.Forking
}

// IsChanged reports whether the last reload modified the service
func (s *Service) IsChanged() bool {
	return s.changed
}

// IsStarting reports whether the service is started but not yet ready
func (s *Service) IsStarting() bool {
	return s.starting
}

// IsRunning reports whether the service is in the running state
func (s *Service) IsRunning() bool {
	return s.state == StateRunning
}

// State returns the supervision state
func (s *Service) State() ServiceState {
	return s.state
}

// Start marks the service running and waiting for readiness
func (s *Service) Start(pid int) {
	s.state = StateRunning
	s.starting = true
	s.PID = pid
}

// Stop marks the service halted
func (s *Service) Stop() {
	s.state = StateHalted
	s.starting = false
	s.PID = 0
}

func (s *Service) key() string {
	if s.ID != "" {
		return s.Name + ":" + s.ID
	}
	return s.Name
}

// ServiceRegistry is the view of the service supervisor plugins work with
type ServiceRegistry interface {
	// FindByPIDFile returns the service whose pidfile is path, or nil
	FindByPIDFile(path string) *Service
	// MarkStarted records that the service signalled readiness
	MarkStarted(svc *Service)
	// Iterate calls fn for each service until fn returns false
	Iterate(fn func(*Service) bool)
	// StepAll re-evaluates every service of the given types
	StepAll(types ServiceType)
}

// ErrDuplicateService is returned when adding a service twice
var ErrDuplicateService = errors.New("initd: duplicate service")

// Stepper advances one service's state machine
type Stepper func(svc *Service)

// ServiceTable is an in-memory ServiceRegistry. Like the plugin Registry
// it is only used from the event loop goroutine.
type ServiceTable struct {
	services []*Service
	stepper  Stepper
	steps    int
}

// ServiceTableOption configures a ServiceTable
type ServiceTableOption func(*ServiceTable)

// WithStepper sets the function StepAll calls per selected service
func WithStepper(fn Stepper) ServiceTableOption {
	return func(t *ServiceTable) {
		t.stepper = fn
	}
}

// NewServiceTable creates an empty table
func NewServiceTable(opts ...ServiceTableOption) *ServiceTable {
	t := &ServiceTable{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Add inserts svc. Pidfile paths are cleaned so event paths match.
func (t *ServiceTable) Add(svc *Service) error {
	if svc == nil || svc.Name == "" {
		return ErrInvalidArgument
	}
	if t.Lookup(svc.Name, svc.ID) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateService, svc.key())
	}
	if svc.PIDFile != "" {
		svc.PIDFile = filepath.Clean(svc.PIDFile)
	}
	t.services = append(t.services, svc)
	return nil
}

// Lookup returns the service with the given name and id, or nil
func (t *ServiceTable) Lookup(name, id string) *Service {
	for _, s := range t.services {
		if s.Name == name && s.ID == id {
			return s
		}
	}
	return nil
}

// Len returns the number of services
func (t *ServiceTable) Len() int {
	return len(t.services)
}

// FindByPIDFile returns the service whose pidfile is path, or nil
func (t *ServiceTable) FindByPIDFile(path string) *Service {
	if path == "" {
		return nil
	}
	path = filepath.Clean(path)
	for _, s := range t.services {
		if s.PIDFile == path {
			return s
		}
	}
	return nil
}

// MarkStarted clears the starting flag of a running service
func (t *ServiceTable) MarkStarted(svc *Service) {
	if svc == nil {
		return
	}
	svc.starting = false
	if svc.state == StateHalted {
		svc.state = StateRunning
	}
}

// Iterate calls fn for each service in insertion order until fn returns false
func (t *ServiceTable) Iterate(fn func(*Service) bool) {
	for _, s := range slices.Clone(t.services) {
		if !fn(s) {
			return
		}
	}
}

// StepAll runs the stepper on every service of the given types
func (t *ServiceTable) StepAll(types ServiceType) {
	t.steps++
	if t.stepper == nil {
		return
	}
	for _, s := range slices.Clone(t.services) {
		if s.Type&types != 0 {
			t.stepper(s)
		}
	}
}

// Steps returns how many times StepAll has been called
func (t *ServiceTable) Steps() int {
	return t.steps
}

// Reload replaces the configured services. Services whose definition
// differs from the running one, and new services, are marked changed;
// services no longer configured are dropped. Runtime state of unchanged
// services is kept.
func (t *ServiceTable) Reload(next []*Service) error {
	seen := make(map[string]struct{}, len(next))
	services := make([]*Service, 0, len(next))

	for _, n := range next {
		if n == nil || n.Name == "" {
			return ErrInvalidArgument
		}
		if _, dup := seen[n.key()]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateService, n.key())
		}
		seen[n.key()] = struct{}{}

		if n.PIDFile != "" {
			n.PIDFile = filepath.Clean(n.PIDFile)
		}

		cur := t.Lookup(n.Name, n.ID)
		if cur == nil {
			n.changed = true
			services = append(services, n)
			continue
		}

		if cur.Type != n.Type || cur.PIDFile != n.PIDFile || cur.Forking != n.Forking {
			cur.Type = n.Type
			cur.PIDFile = n.PIDFile
			cur.Forking = n.Forking
			cur.changed = true
		}
		services = append(services, cur)
	}

	t.services = services
	return nil
}

// ClearChanged resets the changed flag on every service
func (t *ServiceTable) ClearChanged() {
	for _, s := range t.services {
		s.changed = false
	}
}
