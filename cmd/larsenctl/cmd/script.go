package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/larsen-farm/plugintools/internal/script"
)

func newScriptCmd(a *app) *cobra.Command {
	var (
		timeout  time.Duration
		schedule string
	)

	cmd := &cobra.Command{
		Use:   "script <file.lua>",
		Short: "Run a Lua script against the device",
		Long: `Runs a sandboxed Lua script. The larsen module exposes every builder
(larsen.move_absolute, larsen.toggle_pin, ...) plus send, log, state, position,
pin, config, set_config and api.

With --schedule the script is rerun on a cron spec until interrupted; a
failing run is logged and the next one still happens.

Example:
  larsenctl script water.lua --timeout 30s
  larsenctl script water.lua --schedule "0 6 * * *"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := script.New(a.dev,
				script.WithWebAPI(a.api),
				script.WithResolver(a.config),
				script.WithLogger(a.logger),
				script.WithTimeout(timeout),
			)
			if schedule == "" {
				return r.RunFile(cmd.Context(), args[0])
			}
			return script.Schedule(cmd.Context(), schedule, func(ctx context.Context) error {
				return r.RunFile(ctx, args[0])
			}, a.logger)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "maximum run time (0 for none)")
	cmd.Flags().StringVar(&schedule, "schedule", "", `cron spec or descriptor such as "@every 1h"`)
	return cmd
}
