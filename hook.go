package initd

import (
	"log/slog"
	"reflect"

	"github.com/axondata/go-initd/internal/logging"
)

// HookPoint is a daemon lifecycle milestone at which plugin callbacks run.
// The order is significant: it is the order milestones occur at boot, and
// every point from HookCondThreshold on may signal a condition.
type HookPoint int

const (
	// HookBanner runs before the boot banner is printed
	HookBanner HookPoint = iota
	// HookRootfsUp runs once the root filesystem is mounted
	HookRootfsUp
	// HookMountError runs when mounting file systems failed
	HookMountError
	// HookMountPost runs after all file systems in fstab are mounted
	HookMountPost
	// HookBasefsUp runs once the base file systems, including /run, are up
	HookBasefsUp
	// HookNetworkUp runs once networking is up
	HookNetworkUp
	// HookSvcPlugin runs before service plugins are started
	HookSvcPlugin
	// HookSvcUp runs once all services of the boot runlevel are launched
	HookSvcUp
	// HookSystemUp runs once the system is fully up
	HookSystemUp
	// HookSvcReconf runs after a configuration reload
	HookSvcReconf
	// HookRunlevelChange runs after a runlevel change
	HookRunlevelChange
	// HookNetworkDown runs when networking is taken down
	HookNetworkDown
	// HookShutdown runs at shutdown or reboot
	HookShutdown

	// HookCount is the number of hook points
	HookCount
)

// HookCondThreshold is the first hook point after which conditions are
// stored on a mounted file system and can be signalled.
const HookCondThreshold = HookMountError

// Hook point condition names
const (
	hookBannerStr         = "hook/sys/banner"
	hookRootfsUpStr       = "hook/mount/root"
	hookMountErrorStr     = "hook/mount/error"
	hookMountPostStr      = "hook/mount/post"
	hookBasefsUpStr       = "hook/mount/all"
	hookNetworkUpStr      = "hook/net/up"
	hookSvcPluginStr      = "hook/svc/plugin"
	hookSvcUpStr          = "hook/svc/up"
	hookSystemUpStr       = "hook/sys/up"
	hookSvcReconfStr      = "hook/svc/reconf"
	hookRunlevelChangeStr = "hook/sys/runlevel"
	hookNetworkDownStr    = "hook/net/down"
	hookShutdownStr       = "hook/sys/shutdown"
	hookUnknownStr        = "hook/unknown"
)

// String returns the hook point's symbolic name, also used as its condition
func (h HookPoint) String() string {
	switch h {
	case HookBanner:
		return hookBannerStr
	case HookRootfsUp:
		return hookRootfsUpStr
	case HookMountError:
		return hookMountErrorStr
	case HookMountPost:
		return hookMountPostStr
	case HookBasefsUp:
		return hookBasefsUpStr
	case HookNetworkUp:
		return hookNetworkUpStr
	case HookSvcPlugin:
		return hookSvcPluginStr
	case HookSvcUp:
		return hookSvcUpStr
	case HookSystemUp:
		return hookSystemUpStr
	case HookSvcReconf:
		return hookSvcReconfStr
	case HookRunlevelChange:
		return hookRunlevelChangeStr
	case HookNetworkDown:
		return hookNetworkDownStr
	case HookShutdown:
		return hookShutdownStr
	default:
		return hookUnknownStr
	}
}

// Valid reports whether h is one of the defined hook points
func (h HookPoint) Valid() bool {
	return h >= 0 && h < HookCount
}

// HookFunc is a plugin callback bound to a hook point
type HookFunc func(arg any)

// Hook is one hook slot of a plugin: a callback and its default argument
type Hook struct {
	Fn  HookFunc
	Arg any
}

// HookExists reports whether any registered plugin binds a callback at point.
func (r *Registry) HookExists(point HookPoint) bool {
	if !point.Valid() {
		return false
	}
	for _, p := range r.plugins {
		if p.Hooks[point].Fn != nil {
			return true
		}
	}
	return false
}

// RunHook calls every callback bound at point, in registration order, with
// arg or, when arg is nil or a nil pointer, map, slice, func or channel,
// the callback's default argument. Hooks past
// HookCondThreshold then signal the point's one-shot condition, and finally
// services and run-tasks are stepped so anything the hook unblocked can
// make progress.
func (r *Registry) RunHook(point HookPoint, arg any) {
	if !point.Valid() {
		r.logger.Error("invalid hook point", slog.Int("hook", int(point)))
		return
	}

	// Callbacks may register plugins; iterate a snapshot
	for _, p := range r.Plugins() {
		hook := p.Hooks[point]
		if hook.Fn == nil {
			continue
		}

		a := arg
		if isNil(a) {
			a = hook.Arg
		}

		r.logger.Debug("calling hook",
			logging.String("plugin", p.Name),
			logging.String("hook", point.String()),
		)
		r.safeCall(p, point.String(), func() { hook.Fn(a) })
	}

	if point >= HookCondThreshold && r.conds != nil {
		if err := r.conds.SetOneshot(point.String()); err != nil {
			r.logger.Warn("failed signalling hook condition",
				logging.String("cond", point.String()),
				logging.Error(err),
			)
		}
	}

	if r.services != nil {
		r.services.StepAll(TypeService | TypeRunTask)
	}
}

// RunHooks calls every callback bound at point with its default argument.
func (r *Registry) RunHooks(point HookPoint) {
	r.RunHook(point, nil)
}

// safeCall runs plugin code; a panic is logged and contained so a broken
// plugin cannot take down the daemon.
func (r *Registry) safeCall(p *Plugin, what string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("plugin callback panicked",
				logging.String("plugin", p.Name),
				logging.String("callback", what),
				logging.Any("panic", rec),
			)
		}
	}()
	fn()
}

// isNil reports whether v is nil or a typed nil
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
