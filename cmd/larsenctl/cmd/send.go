package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/larsen-farm/plugintools/pkg/celery"
)

func newSendCmd(a *app) *cobra.Command {
	var rpcID string

	cmd := &cobra.Command{
		Use:   "send <json|->",
		Short: "Send a raw celery-script command",
		Long: `Sends one celery-script command, given as JSON or read from stdin with "-".

Example:
  larsenctl send '{"kind": "take_photo", "args": {}}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := []byte(args[0])
			if args[0] == "-" {
				var err error
				if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}

			command, err := celery.Parse(data)
			if err != nil {
				return err
			}
			res, err := a.dev.Send(cmd.Context(), command, rpcID)
			if err != nil {
				return err
			}
			if a.verbose {
				a.printer.Println(a.printer.CeleryScript(res.Sent))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rpcID, "rpc-id", "", "RPC label (default: a fresh UUID)")
	return cmd
}
