package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/larsen-farm/plugintools/internal/device"
)

func newDeviceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Build and send device commands",
		Long: `Each subcommand builds one celery-script command and sends it. Arguments are
given in order or as name=value pairs:

  larsenctl device move_relative -- 10 0 -5 100
  larsenctl device move_absolute location=100,200,0 speed=80
  larsenctl device send_message "Watering done" success toast`,
	}

	cmd.AddCommand(newDeviceListCmd())
	for _, spec := range device.Builders() {
		cmd.AddCommand(newBuilderCmd(a, spec))
	}

	return cmd
}

func newDeviceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available builders and their arguments",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BUILDER\tARGUMENTS\tDESCRIPTION")
			for _, spec := range device.Builders() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", spec.Name, paramUsage(spec), spec.Help)
			}
			return w.Flush()
		},
	}
}

func newBuilderCmd(a *app, spec device.BuilderSpec) *cobra.Command {
	maxArgs := len(spec.Params)
	if maxArgs > 0 && spec.Params[maxArgs-1].Type == device.ParamStrings {
		maxArgs = -1
	}

	return &cobra.Command{
		Use:   strings.TrimSpace(spec.Name + " " + paramUsage(spec)),
		Short: spec.Help,
		Args: func(cmd *cobra.Command, args []string) error {
			if maxArgs >= 0 && len(args) > maxArgs {
				return fmt.Errorf("%s takes at most %d arguments, got %d", spec.Name, maxArgs, len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			named, err := builderArgs(spec, args)
			if err != nil {
				return err
			}
			command, err := a.dev.Commands().Build(spec.Name, named)
			if err != nil {
				return err
			}
			res, err := a.dev.Send(cmd.Context(), command, "")
			if err != nil {
				return err
			}
			if a.verbose {
				a.printer.Println(a.printer.CeleryScript(res.Sent))
			}
			return nil
		},
	}
}

// builderArgs merges positional arguments and name=value pairs. Named
// pairs win over positions.
func builderArgs(spec device.BuilderSpec, args []string) (map[string]any, error) {
	var positional []any
	named := map[string]any{}
	for _, arg := range args {
		if name, value, ok := strings.Cut(arg, "="); ok && isParam(spec, name) {
			named[name] = value
			continue
		}
		positional = append(positional, arg)
	}

	out, err := spec.Positional(positional)
	if err != nil {
		return nil, err
	}
	for k, v := range named {
		out[k] = v
	}
	return out, nil
}

func isParam(spec device.BuilderSpec, name string) bool {
	for _, p := range spec.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func paramUsage(spec device.BuilderSpec) string {
	parts := make([]string, 0, len(spec.Params))
	for _, p := range spec.Params {
		name := p.Name
		if p.Type == device.ParamStrings {
			name += "..."
		}
		if p.Optional {
			parts = append(parts, "["+name+"]")
		} else {
			parts = append(parts, "<"+name+">")
		}
	}
	return strings.Join(parts, " ")
}
