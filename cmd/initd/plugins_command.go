package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	initd "github.com/axondata/go-initd"
	"github.com/axondata/go-initd/internal/config"
	"github.com/axondata/go-initd/internal/logging"
)

func newPluginsCommand(ctx *commandContext) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List built-in and loadable plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *ctx.config
			if dir != "" {
				cfg.PluginDir = dir
			}
			return listPlugins(cmd.OutOrStdout(), &cfg)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Plugin directory, overrides plugin_dir")
	return cmd
}

// listPlugins loads what the daemon would load, without touching the
// kernel uevent socket, and prints it.
func listPlugins(w io.Writer, cfg *config.Config) error {
	logger := logging.NewNop()
	conds := initd.NewMemStore()
	services := initd.NewServiceTable()

	opts := []initd.Option{
		initd.WithLogger(logger),
		initd.WithConditions(conds),
		initd.WithServices(services),
		initd.WithPluginPath(cfg.PluginDir),
		initd.WithHost(&initd.Host{
			Logger:     logger,
			Conditions: conds,
			Services:   services,
			RunDir:     cfg.RunDir,
		}),
	}
	if !cfg.Static {
		opts = append(opts, initd.WithLoader(initd.GoLoader{}))
	}
	reg := initd.NewRegistry(opts...)
	defer reg.Exit()

	closers, err := registerBuiltins(reg, builtinDeps{
		conds:    conds,
		services: services,
		runDir:   cfg.RunDir,
		logger:   logger,
		connect:  false,
	})
	defer closeAll(closers)
	if err != nil {
		return err
	}

	var failed int
	if !cfg.Static {
		failed, _ = reg.Discover(cfg.PluginDir)
	}

	rows := pluginRows(reg.Plugins())
	if _, err := fmt.Fprintln(w, renderTable([]string{"NAME", "ORIGIN", "HOOKS", "IO", "DEPENDS"}, rows)); err != nil {
		return err
	}
	if failed > 0 {
		_, err := fmt.Fprintf(w, "%d module(s) in %s failed to load\n", failed, cfg.PluginDir)
		return err
	}
	return nil
}

func pluginRows(plugins []*initd.Plugin) [][]string {
	rows := make([][]string, 0, len(plugins))
	for _, p := range plugins {
		origin := "builtin"
		if p.Loaded() {
			origin = "module"
		}
		hasIO := "no"
		if p.HasIO() {
			hasIO = "yes"
		}
		rows = append(rows, []string{
			p.Name,
			origin,
			strings.Join(p.HookNames(), ", "),
			hasIO,
			strings.Join(p.Depends, ", "),
		})
	}
	return rows
}

func closeAll(closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i].Close()
	}
}
