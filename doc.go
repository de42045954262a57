// Package initd is the plugin core of a PID 1 init daemon.
//
// A Registry holds plugins in registration order. Plugins bind callbacks
// to lifecycle hook points and may watch a file descriptor on the
// daemon's single event loop:
//
//	reg := initd.NewRegistry(
//	    initd.WithLoader(initd.GoLoader{}),
//	    initd.WithEventLoop(lp),
//	    initd.WithConditions(conds),
//	    initd.WithServices(services),
//	)
//	if n, err := reg.Discover("/usr/lib/initd/plugins"); n > 0 {
//	    logger.Warn("some plugins failed to load", "count", n, "error", err)
//	}
//	reg.InitIO()
//	reg.RunHooks(initd.HookBasefsUp)
//
// Loadable modules are built with -buildmode=plugin and export NewPlugin,
// a func(*initd.Host) (*initd.Plugin, error). The registry registers the
// returned record itself and verifies it landed.
//
// # Conditions
//
// Services wait on named conditions held by a ConditionStore. Every hook
// point from HookCondThreshold on asserts its own one-shot condition, for
// example "hook/mount/all", once its callbacks have run. Plugins assert
// further conditions, such as "pid/<service>" from the pidfile plugin.
//
// # Threading
//
// Registry, ServiceTable and all plugin callbacks are used from the event
// loop goroutine only. Other goroutines, like the ConfigWatcher, hand work
// to the loop with its Post method.
package initd
