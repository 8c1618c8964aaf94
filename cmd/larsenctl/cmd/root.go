package cmd

import (
	"github.com/spf13/cobra"
)

// Version is set by the main package via ldflags.
var Version = "dev"

// NewRootCmd creates the root larsenctl command.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "larsenctl",
		Short: "Larsen plugin tools CLI: drive the device and the farm web app",
		Long: `larsenctl builds and sends celery-script commands, reads device state,
resolves plugin configuration and calls the farm web app API.

Transports are chosen from the environment: PLUGIN_URL and PLUGIN_TOKEN select
the device plugin API, the LARSEN_PLUGIN_API_V2_*_PIPE variables select the
pipe transport on LarsenOS 8 and later. Without either every command is
printed instead of sent.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file path (default: larsen.toml in /etc/larsen, ~/.config/larsen or .)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose web API output and debug logging")
	rootCmd.PersistentFlags().StringVar(&a.color, "color", "", "colour output: auto, always or never (default from config)")

	rootCmd.AddCommand(newSendCmd(a))
	rootCmd.AddCommand(newDeviceCmd(a))
	rootCmd.AddCommand(newStateCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newAPICmd(a))
	rootCmd.AddCommand(newScriptCmd(a))
	rootCmd.AddCommand(newSecretsCmd(a))

	return rootCmd
}
