package cmd

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/larsen-farm/plugintools/internal/device"
)

func newStateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Read the device state",
	}

	cmd.AddCommand(newStateShowCmd(a))
	cmd.AddCommand(newStatePositionCmd(a))
	cmd.AddCommand(newStatePinCmd(a))
	cmd.AddCommand(newStateWatchCmd(a))
	cmd.AddCommand(newStateServeCmd(a))

	return cmd
}

func newStateShowCmd(a *app) *cobra.Command {
	var fromBus bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the full state document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sp device.StateProvider = a.dev
			if fromBus {
				b, release, err := a.openBus(cmd.Context(), false)
				if err != nil {
					return err
				}
				defer release()
				sp = b
			}
			state, err := sp.BotState(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(state)
		},
	}

	cmd.Flags().BoolVar(&fromBus, "bus", false, "read the last document published on the state bus")
	return cmd
}

func newStatePositionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "position [x|y|z|all]",
		Short: "Print the current position",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			axis := "all"
			if len(args) == 1 {
				axis = args[0]
			}
			v, err := a.dev.CurrentPosition(cmd.Context(), axis)
			if err != nil {
				return err
			}
			return a.printJSON(v)
		},
	}
}

func newStatePinCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pin <number>",
		Short: "Print the last known value of a pin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, err := strconv.Atoi(args[0])
			if err != nil {
				return err
			}
			v, err := a.dev.PinValue(cmd.Context(), pin)
			if err != nil {
				return err
			}
			return a.printJSON(v)
		},
	}
}

func newStateWatchCmd(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the state document each time the snapshot directory changes",
		Long: `Watches the state snapshot directory written for the v2 transport
(BOT_STATE_DIR) and prints the assembled document after every change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.dev.Env().BotStateDir()
			}
			if dir == "" {
				return errors.New("no state directory: set BOT_STATE_DIR or pass --dir")
			}
			ds := device.NewDirState(dir, a.logger)

			state, err := ds.BotState(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.printJSON(state); err != nil {
				return err
			}
			return ds.Watch(cmd.Context(), func(state map[string]any) {
				if err := a.printJSON(state); err != nil {
					a.logger.Error().Err(err).Msg("print state")
				}
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "snapshot directory (default: $BOT_STATE_DIR)")
	return cmd
}

func newStateServeCmd(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Publish state snapshots on the state bus",
		Long: `Watches the state snapshot directory and publishes every change on the
larsen.state subject of the configured NATS broker. Without statebus.url an
embedded broker is started, listening on statebus.listen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.dev.Env().BotStateDir()
			}
			if dir == "" {
				return errors.New("no state directory: set BOT_STATE_DIR or pass --dir")
			}
			ctx := cmd.Context()

			b, release, err := a.openBus(ctx, true)
			if err != nil {
				return err
			}
			defer release()

			ds := device.NewDirState(dir, a.logger)
			publish := func(state map[string]any) {
				if err := b.Publish(ctx, state); err != nil {
					a.logger.Error().Err(err).Msg("publish state")
				}
			}

			state, err := ds.BotState(ctx)
			if err != nil {
				return err
			}
			publish(state)
			return ds.Watch(ctx, publish)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "snapshot directory (default: $BOT_STATE_DIR)")
	return cmd
}
