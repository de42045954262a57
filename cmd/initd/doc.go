// Package main is the initd command.
//
// "initd run" starts the daemon harness: it loads the configuration,
// registers the built-in plugins, discovers loadable modules, attaches
// plugin descriptors to the event loop and walks the boot hook sequence.
// Configuration changes, on disk or signalled with SIGHUP, reload the
// service table and run the reconfiguration hook.
//
// "initd plugins" lists the plugins a daemon with the same configuration
// would load.
package main
