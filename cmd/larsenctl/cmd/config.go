package cmd

import (
	"github.com/spf13/cobra"

	"github.com/larsen-farm/plugintools/internal/pluginconfig"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Resolve and set plugin inputs",
	}

	cmd.AddCommand(newConfigGetCmd(a))
	cmd.AddCommand(newConfigSetCmd(a))

	return cmd
}

func newConfigGetCmd(a *app) *cobra.Command {
	var valueType string

	cmd := &cobra.Command{
		Use:   "get <plugin> <name>",
		Short: "Resolve a plugin input",
		Long: `Resolves a plugin input from its environment override
(<snake_case plugin>_<name>) or the default in the plugin manifest on the
device.

Example:
  larsenctl config get "Plant Watering" ml --type float`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := pluginconfig.ParseValueType(valueType)
			if err != nil {
				return err
			}
			v, err := a.config.GetValue(cmd.Context(), args[0], args[1], t)
			if err != nil {
				return err
			}
			return a.printJSON(v)
		},
	}

	cmd.Flags().StringVarP(&valueType, "type", "t", "int", "value type: int, string, float or bool")
	return cmd
}

func newConfigSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <plugin> <name> <value>",
		Short: "Store a plugin input override on the device",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.config.SetValue(cmd.Context(), args[0], args[1], args[2])
			return err
		},
	}
}
