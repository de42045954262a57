package main

import (
	"fmt"

	"github.com/spf13/cobra"

	initd "github.com/axondata/go-initd"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	v := initd.GetVersion()

	rootCmd := &cobra.Command{
		Use:           "initd",
		Short:         "Plugin driven init daemon",
		Version:       fmt.Sprintf("%s (hook points %d, entry %s)", v.Version, v.HookCount, v.EntrySymbol),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newPluginsCommand(ctx))

	return rootCmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), ctx.configPath(), ctx.config, ctx.logger)
		},
	}
}
