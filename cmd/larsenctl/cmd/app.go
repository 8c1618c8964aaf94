package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/larsen-farm/plugintools/internal/config"
	"github.com/larsen-farm/plugintools/internal/console"
	"github.com/larsen-farm/plugintools/internal/device"
	"github.com/larsen-farm/plugintools/internal/env"
	"github.com/larsen-farm/plugintools/internal/pluginconfig"
	"github.com/larsen-farm/plugintools/internal/webapp"
)

// app carries the clients every subcommand shares. setup fills it in
// before any RunE runs.
type app struct {
	cfgFile string
	verbose bool
	color   string

	cfg     config.Config
	logger  zerolog.Logger
	src     env.Source
	out     io.Writer
	printer *console.Printer
	dev     *device.Client
	api     *webapp.Client
	config  *pluginconfig.Resolver
}

func (a *app) setup(cmd *cobra.Command) error {
	level := zerolog.InfoLevel
	if a.verbose {
		level = zerolog.DebugLevel
	}
	a.logger = zerolog.New(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
	).Level(level).With().Timestamp().Logger()

	cfg, err := config.LoadConfig(a.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.color != "" {
		cfg.Output.Color = a.color
	}
	if a.verbose {
		cfg.API.Verbose = true
	}
	a.cfg = cfg

	src, err := cfg.Source(a.logger)
	if err != nil {
		return err
	}
	a.src = src

	a.out = cmd.OutOrStdout()
	tty, _ := a.out.(*os.File)
	a.printer = console.New(a.out, console.ColorEnabled(cfg.Output.Color, tty))
	a.dev = device.NewClient(
		device.WithEnv(src),
		device.WithPrinter(a.printer),
		device.WithLogger(a.logger),
	)
	a.api = webapp.NewClient(
		webapp.WithEnv(src),
		webapp.WithPrinter(a.printer),
		webapp.WithVerbose(cfg.API.Verbose),
		webapp.WithLogger(a.logger),
	)
	a.config = pluginconfig.New(a.dev, src, a.logger)
	return nil
}

// printJSON writes v as indented JSON.
func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
