package mcp

import (
	"context"
	"encoding/json"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/larsen-farm/plugintools/internal/device"
	"github.com/larsen-farm/plugintools/internal/pluginconfig"
	"github.com/larsen-farm/plugintools/internal/script"
	"github.com/larsen-farm/plugintools/pkg/celery"
)

func (s *MCPServer) handleBuilder(spec device.BuilderSpec) func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		cmd, err := s.dev.Commands().Build(spec.Name, req.GetArguments())
		if err != nil {
			return textError("invalid " + spec.Name + ": " + err.Error()), nil
		}
		return s.send(ctx, cmd, "")
	}
}

func (s *MCPServer) handleSendCeleryScript(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	raw, ok := req.GetArguments()["command"]
	if !ok || raw == nil {
		return textError("missing required parameter: command"), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return textError("failed to marshal command: " + err.Error()), nil
	}
	cmd, err := celery.Parse(data)
	if err != nil {
		return textError(err.Error()), nil
	}
	return s.send(ctx, cmd, req.GetString("rpc_id", ""))
}

func (s *MCPServer) send(ctx context.Context, cmd celery.Command, rpcID string) (*mcplib.CallToolResult, error) {
	res, err := s.dev.Send(ctx, cmd, rpcID)
	if err != nil {
		return textError("failed to send " + cmd.Kind + ": " + err.Error()), nil
	}
	s.logger.Debug().Str("kind", cmd.Kind).Msg("sent command")
	return textJSON(res)
}

func (s *MCPServer) handleGetBotState(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	state, err := s.dev.BotState(ctx)
	if err != nil {
		return textError("failed to get device state: " + err.Error()), nil
	}
	return textJSON(state)
}

func (s *MCPServer) handleGetPosition(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	axis := req.GetString("axis", "all")
	v, err := s.dev.CurrentPosition(ctx, axis)
	if err != nil {
		return textError("failed to get position: " + err.Error()), nil
	}
	return textJSON(v)
}

func (s *MCPServer) handleGetPin(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	pin, err := req.RequireInt("pin_number")
	if err != nil {
		return textError("missing required parameter: pin_number"), nil
	}
	v, err := s.dev.PinValue(ctx, pin)
	if err != nil {
		return textError("failed to get pin value: " + err.Error()), nil
	}
	return textJSON(v)
}

func (s *MCPServer) handleGetConfig(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.config == nil {
		return textError("plugin config is not available"), nil
	}
	plugin, err := req.RequireString("plugin")
	if err != nil {
		return textError("missing required parameter: plugin"), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return textError("missing required parameter: name"), nil
	}
	t, err := pluginconfig.ParseValueType(strings.ToLower(req.GetString("type", "int")))
	if err != nil {
		return textError(err.Error()), nil
	}

	v, err := s.config.GetValue(ctx, plugin, name, t)
	if err != nil {
		return textError("failed to resolve config: " + err.Error()), nil
	}
	return textJSON(map[string]any{
		"env_var": pluginconfig.EnvVar(plugin, name),
		"value":   v,
	})
}

func (s *MCPServer) handleSetConfig(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.config == nil {
		return textError("plugin config is not available"), nil
	}
	plugin, err := req.RequireString("plugin")
	if err != nil {
		return textError("missing required parameter: plugin"), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return textError("missing required parameter: name"), nil
	}
	value, ok := req.GetArguments()["value"]
	if !ok {
		return textError("missing required parameter: value"), nil
	}

	res, err := s.config.SetValue(ctx, plugin, name, value)
	if err != nil {
		return textError("failed to set config: " + err.Error()), nil
	}
	return textJSON(res)
}

func (s *MCPServer) handleAPIRequest(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.api == nil {
		return textError("web API is not configured"), nil
	}
	method, err := req.RequireString("method")
	if err != nil {
		return textError("missing required parameter: method"), nil
	}
	endpoint, err := req.RequireString("endpoint")
	if err != nil {
		return textError("missing required parameter: endpoint"), nil
	}
	var payload any
	if raw, ok := req.GetArguments()["payload"]; ok && raw != nil {
		payload = raw
	}

	resp, err := s.api.Request(ctx, method, endpoint, req.GetString("id", ""), payload)
	if err != nil {
		return textError("request failed: " + err.Error()), nil
	}
	out := map[string]any{"status_code": resp.StatusCode, "body": resp.JSON, "sent": resp.Sent}
	if resp.Sent && !resp.OK() {
		result, err := textJSON(out)
		if err == nil {
			result.IsError = true
		}
		return result, err
	}
	return textJSON(out)
}

func (s *MCPServer) handleFindSequence(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.api == nil {
		return textError("web API is not configured"), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return textError("missing required parameter: name"), nil
	}
	id, err := s.api.FindSequenceByName(ctx, name)
	if err != nil {
		return textError(err.Error()), nil
	}
	return textJSON(map[string]any{"id": id, "name": name})
}

func (s *MCPServer) handleRunScript(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return textError("missing required parameter: source"), nil
	}
	name := req.GetString("name", "mcp")

	opts := []script.Option{script.WithLogger(s.logger), script.WithTimeout(s.scriptTimeout)}
	if s.api != nil {
		opts = append(opts, script.WithWebAPI(s.api))
	}
	if s.config != nil {
		opts = append(opts, script.WithResolver(s.config))
	}
	if err := script.New(s.dev, opts...).Run(ctx, name, source); err != nil {
		return textError(err.Error()), nil
	}
	return textJSON(map[string]any{"status": "finished", "script": name})
}

// textResult returns a successful text result.
func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

// textError returns an error text result.
func textError(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// textJSON marshals v to indented JSON and returns it as a text result.
func textJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return textError("failed to marshal response: " + err.Error()), nil
	}
	return textResult(string(data)), nil
}
