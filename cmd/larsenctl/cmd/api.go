package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/larsen-farm/plugintools/internal/webapp"
)

func newAPICmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Call the farm web app API",
		Long: `Calls the farm web app. The server and token come from the JWT in
LARSEN_API_TOKEN (or API_TOKEN); without a token requests are printed instead
of sent.`,
	}

	cmd.AddCommand(newAPIRequestCmd(a))
	cmd.AddCommand(newAPILogCmd(a))
	cmd.AddCommand(newAPIListCmd(a, "plants", "List plants", (*webapp.Client).GetPlants))
	cmd.AddCommand(newAPIListCmd(a, "points", "List points", (*webapp.Client).GetPoints))
	cmd.AddCommand(newAPIListCmd(a, "toolslots", "List tool slots", (*webapp.Client).GetToolslots))
	cmd.AddCommand(newAPISequenceCmd(a))

	return cmd
}

func newAPIRequestCmd(a *app) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "request <method> <endpoint> [id]",
		Short: "Send a raw API request",
		Long: `Sends a request to /api/<endpoint>[/<id>].

Example:
  larsenctl api request get points 42
  larsenctl api request post logs --data '{"message":"hi"}'`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 3 {
				id = args[2]
			}
			var payload any
			if data != "" {
				if err := json.Unmarshal([]byte(data), &payload); err != nil {
					return fmt.Errorf("parse --data: %w", err)
				}
			}
			resp, err := a.api.Request(cmd.Context(), strings.ToUpper(args[0]), args[1], id, payload)
			if err != nil {
				return err
			}
			return a.printResponse(resp)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	return cmd
}

func newAPILogCmd(a *app) *cobra.Command {
	var messageType string

	cmd := &cobra.Command{
		Use:   "log <message>",
		Short: "Create a log entry in the web app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.api.Log(cmd.Context(), args[0], messageType)
			if err != nil {
				return err
			}
			return a.printResponse(resp)
		},
	}

	cmd.Flags().StringVarP(&messageType, "type", "t", "info", "log message type")
	return cmd
}

func newAPIListCmd(a *app, use, short string, list func(*webapp.Client, context.Context) (webapp.Response, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := list(a.api, cmd.Context())
			if err != nil {
				return err
			}
			return a.printResponse(resp)
		},
	}
}

func newAPISequenceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sequence <name>",
		Short: "Print the ID of the sequence with the given name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.api.FindSequenceByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, id)
			return nil
		},
	}
}

// printResponse prints the decoded body of a response that was sent. Unsent
// requests were already printed by the client.
func (a *app) printResponse(resp webapp.Response) error {
	if !resp.Sent {
		return nil
	}
	if err := a.printJSON(resp.JSON); err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return nil
}
