package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/larsen-farm/plugintools/internal/config"
	"github.com/larsen-farm/plugintools/internal/console"
	"github.com/larsen-farm/plugintools/internal/device"
	mcpserver "github.com/larsen-farm/plugintools/internal/mcp"
	"github.com/larsen-farm/plugintools/internal/pluginconfig"
	"github.com/larsen-farm/plugintools/internal/statebus"
	"github.com/larsen-farm/plugintools/internal/webapp"
)

var version = "dev"

func main() {
	var (
		cfgFile       string
		scriptTimeout time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "larsen-mcp",
		Short: "Larsen MCP server: expose device builders and the farm web app to AI assistants",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(
				zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
			).With().Timestamp().Logger()

			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			src, err := cfg.Source(logger)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			// stdout carries the protocol.
			printer := console.New(os.Stderr, false)
			devOpts := []device.Option{
				device.WithEnv(src),
				device.WithPrinter(printer),
				device.WithLogger(logger),
			}
			if cfg.StateBus.URL != "" {
				token, err := cfg.StateBusToken()
				if err != nil {
					return err
				}
				bus, err := statebus.Connect(ctx, cfg.StateBus.URL, token, logger)
				if err != nil {
					return err
				}
				defer bus.Close()
				devOpts = append(devOpts, device.WithStateProvider(bus))
			}
			dev := device.NewClient(devOpts...)
			api := webapp.NewClient(
				webapp.WithEnv(src),
				webapp.WithPrinter(printer),
				webapp.WithVerbose(cfg.API.Verbose),
				webapp.WithLogger(logger),
			)

			s := mcpserver.New(dev,
				mcpserver.WithWebAPI(api),
				mcpserver.WithResolver(pluginconfig.New(dev, src, logger)),
				mcpserver.WithLogger(logger),
				mcpserver.WithVersion(version),
				mcpserver.WithScriptTimeout(scriptTimeout),
			)
			return s.Run(ctx)
		},
	}

	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.Flags().DurationVar(&scriptTimeout, "script-timeout", time.Minute, "maximum run time of the run_script tool")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
