//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"vawter.tech/stopper"

	initd "github.com/axondata/go-initd"
	"github.com/axondata/go-initd/internal/config"
	"github.com/axondata/go-initd/internal/logging"
	"github.com/axondata/go-initd/internal/loop"
)

// bootHooks are run in order once the loop starts
var bootHooks = []initd.HookPoint{
	initd.HookBanner,
	initd.HookRootfsUp,
	initd.HookMountPost,
	initd.HookBasefsUp,
	initd.HookNetworkUp,
	initd.HookSvcPlugin,
	initd.HookSvcUp,
	initd.HookSystemUp,
}

// daemon holds the collaborators owned by the event loop goroutine
type daemon struct {
	cfgPath  string
	logger   *slog.Logger
	reg      *initd.Registry
	services *initd.ServiceTable
}

func runDaemon(ctx context.Context, cfgPath string, cfg *config.Config, logger *slog.Logger) error {
	lock := flock.New(cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", cfg.LockFile, err)
	}
	if !locked {
		return fmt.Errorf("another initd holds %s", cfg.LockFile)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	conds, err := initd.NewFileStore(cfg.CondDir)
	if err != nil {
		return err
	}

	defs, err := cfg.ServiceTable()
	if err != nil {
		return err
	}
	svcLogger := logging.NewComponentLogger(logger, "service")
	services := initd.NewServiceTable(initd.WithStepper(func(svc *initd.Service) {
		svcLogger.Debug("stepping service",
			logging.String("service", svc.Name),
			logging.String("state", svc.State().String()),
		)
	}))
	for _, svc := range defs {
		if err := services.Add(svc); err != nil {
			return err
		}
	}

	lp, err := loop.New(loop.WithLogger(logging.NewComponentLogger(logger, "loop")))
	if err != nil {
		return fmt.Errorf("event loop: %w", err)
	}
	defer lp.Close()

	pluginLogger := logging.NewComponentLogger(logger, "plugin")
	opts := []initd.Option{
		initd.WithLogger(pluginLogger),
		initd.WithEventLoop(lp),
		initd.WithConditions(conds),
		initd.WithServices(services),
		initd.WithPluginPath(cfg.PluginDir),
		initd.WithHost(&initd.Host{
			Logger:     pluginLogger,
			Conditions: conds,
			Services:   services,
			RunDir:     cfg.RunDir,
			Loop:       lp,
		}),
	}
	if cfg.Static {
		opts = append(opts, initd.WithStatic())
	} else {
		opts = append(opts, initd.WithLoader(initd.GoLoader{}))
	}
	reg := initd.NewRegistry(opts...)
	defer reg.Exit()

	closers, err := registerBuiltins(reg, builtinDeps{
		conds:    conds,
		services: services,
		runDir:   cfg.RunDir,
		logger:   logger,
		connect:  true,
	})
	defer closeAll(closers)
	if err != nil {
		return err
	}

	if !cfg.Static {
		if failed, err := reg.Discover(cfg.PluginDir); failed > 0 {
			logger.Warn("some plugins failed to load",
				logging.Int("failed", failed),
				logging.String("dir", cfg.PluginDir),
				logging.Error(err),
			)
		}
	}

	if failed := reg.InitIO(); failed > 0 {
		logger.Warn("some I/O plugins could not be attached", logging.Int("failed", failed))
	}

	d := &daemon{
		cfgPath:  cfgPath,
		logger:   logger,
		reg:      reg,
		services: services,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	sctx := stopper.WithContext(ctx)

	watcher := initd.NewConfigWatcher(cfgPath, func() { d.post(lp, d.reload) },
		initd.WithWatchLogger(logging.NewComponentLogger(logger, "confwatch")),
	)
	if cleanup, err := watcher.Start(ctx); err != nil {
		logger.Warn("configuration changes will only be seen on SIGHUP", logging.Error(err))
	} else {
		sctx.Defer(func() { _ = cleanup() })
	}

	sctx.Go(func(sctx *stopper.Context) error {
		for {
			select {
			case <-sctx.Stopping():
				return nil
			case <-hup:
				d.post(lp, d.reload)
			}
		}
	})

	d.post(lp, d.boot)

	logger.Info("initd running",
		logging.String("version", initd.Version),
		logging.Bool("static", cfg.Static),
		logging.Int("plugins", reg.Len()),
	)
	runErr := lp.Run(ctx)

	// The loop is stopped; this goroutine owns the registry again
	reg.RunHooks(initd.HookShutdown)

	sctx.Stop(time.Second)
	waitErr := sctx.Wait()

	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return errors.Join(runErr, waitErr)
}

func (d *daemon) post(lp *loop.Loop, fn func()) {
	if err := lp.Post(fn); err != nil {
		d.logger.Warn("event loop refused work", logging.Error(err))
	}
}

func (d *daemon) boot() {
	for _, h := range bootHooks {
		d.reg.RunHooks(h)
	}
	d.logger.Info("boot sequence complete")
}

// reload rereads the service configuration and lets plugins reconcile
func (d *daemon) reload() {
	cfg, err := config.Load(d.cfgPath)
	if err != nil {
		d.logger.Error("failed reloading configuration", logging.String("path", d.cfgPath), logging.Error(err))
		return
	}

	defs, err := cfg.ServiceTable()
	if err == nil {
		err = d.services.Reload(defs)
	}
	if err != nil {
		d.logger.Error("failed reloading services", logging.Error(err))
		return
	}

	d.reg.RunHooks(initd.HookSvcReconf)
	d.services.ClearChanged()
	d.logger.Info("configuration reloaded", logging.Int("services", d.services.Len()))
}
