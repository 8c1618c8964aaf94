// Package mcp exposes the device and web app operations to AI assistants
// as MCP tools served over stdio.
package mcp

import (
	"context"
	"log"
	"os"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/larsen-farm/plugintools/internal/device"
	"github.com/larsen-farm/plugintools/internal/pluginconfig"
	"github.com/larsen-farm/plugintools/internal/script"
)

// WebAPI is the part of the web app client the tools use.
type WebAPI interface {
	script.WebAPI
	FindSequenceByName(ctx context.Context, name string) (int, error)
}

// MCPServer exposes plugin tools capabilities via MCP.
type MCPServer struct {
	dev           script.Device
	api           WebAPI
	config        *pluginconfig.Resolver
	logger        zerolog.Logger
	version       string
	scriptTimeout time.Duration
}

// Option configures an MCPServer.
type Option func(*MCPServer)

// WithWebAPI enables the web app tools.
func WithWebAPI(api WebAPI) Option { return func(s *MCPServer) { s.api = api } }

// WithResolver enables get_config and set_config.
func WithResolver(r *pluginconfig.Resolver) Option { return func(s *MCPServer) { s.config = r } }

func WithLogger(logger zerolog.Logger) Option { return func(s *MCPServer) { s.logger = logger } }

func WithVersion(v string) Option { return func(s *MCPServer) { s.version = v } }

// WithScriptTimeout bounds each run_script call.
func WithScriptTimeout(d time.Duration) Option { return func(s *MCPServer) { s.scriptTimeout = d } }

// New creates an MCPServer sending through dev. Call Run to start serving
// on stdio.
func New(dev script.Device, opts ...Option) *MCPServer {
	s := &MCPServer{dev: dev, logger: zerolog.Nop(), version: "dev", scriptTimeout: time.Minute}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With().Str("component", "mcp").Logger()
	return s
}

// Run registers the tools and serves on stdio. It blocks until stdin is
// closed or the context is cancelled.
func (s *MCPServer) Run(ctx context.Context) error {
	srv := mcpserver.NewMCPServer(
		"larsen",
		s.version,
		mcpserver.WithRecovery(),
	)

	s.registerTools(srv)

	stdio := mcpserver.NewStdioServer(srv)
	stdio.SetErrorLogger(log.New(os.Stderr, "", log.LstdFlags))

	s.logger.Info().Msg("MCP server starting on stdio")
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// destructive builders stop or reset the device.
var destructive = map[string]bool{
	"emergency_lock": true,
	"factory_reset":  true,
	"power_off":      true,
	"reboot":         true,
	"remove_plugin":  true,
}

func (s *MCPServer) registerTools(srv *mcpserver.MCPServer) {
	for _, spec := range device.Builders() {
		srv.AddTool(builderTool(spec), s.handleBuilder(spec))
	}

	srv.AddTool(
		mcplib.NewTool("send_celery_script",
			mcplib.WithDescription("Send a raw celery-script command to the device"),
			mcplib.WithObject("command", mcplib.Required(), mcplib.Description("Command node: {\"kind\": ..., \"args\": {...}, \"body\": [...]}")),
			mcplib.WithString("rpc_id", mcplib.Description("RPC label; a UUID is generated when empty")),
		),
		s.handleSendCeleryScript,
	)

	srv.AddTool(
		mcplib.NewTool("get_bot_state",
			mcplib.WithDescription("Get the full device state document"),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetBotState,
	)

	srv.AddTool(
		mcplib.NewTool("get_position",
			mcplib.WithDescription("Get the current device position"),
			mcplib.WithString("axis", mcplib.Description("x, y, z or all (default)")),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetPosition,
	)

	srv.AddTool(
		mcplib.NewTool("get_pin",
			mcplib.WithDescription("Get the last known value of a pin"),
			mcplib.WithNumber("pin_number", mcplib.Required(), mcplib.Description("Pin number 0-69")),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetPin,
	)

	srv.AddTool(
		mcplib.NewTool("get_config",
			mcplib.WithDescription("Resolve a plugin input from its environment override or manifest default"),
			mcplib.WithString("plugin", mcplib.Required(), mcplib.Description("Plugin name as installed on the device")),
			mcplib.WithString("name", mcplib.Required(), mcplib.Description("Input name")),
			mcplib.WithString("type", mcplib.Description("int (default), string, float or bool")),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetConfig,
	)

	srv.AddTool(
		mcplib.NewTool("set_config",
			mcplib.WithDescription("Store an environment override for a plugin input on the device"),
			mcplib.WithString("plugin", mcplib.Required(), mcplib.Description("Plugin name")),
			mcplib.WithString("name", mcplib.Required(), mcplib.Description("Input name")),
			mcplib.WithString("value", mcplib.Required(), mcplib.Description("New value")),
		),
		s.handleSetConfig,
	)

	srv.AddTool(
		mcplib.NewTool("api_request",
			mcplib.WithDescription("Call the farm web app API"),
			mcplib.WithString("method", mcplib.Required(), mcplib.Description("GET, POST, PUT, PATCH or DELETE")),
			mcplib.WithString("endpoint", mcplib.Required(), mcplib.Description("Endpoint below /api/, e.g. \"points\" or \"sequences\"")),
			mcplib.WithString("id", mcplib.Description("Record id")),
			mcplib.WithObject("payload", mcplib.Description("JSON body; ignored for GET and DELETE")),
		),
		s.handleAPIRequest,
	)

	srv.AddTool(
		mcplib.NewTool("find_sequence",
			mcplib.WithDescription("Find a web app sequence id by name"),
			mcplib.WithString("name", mcplib.Required(), mcplib.Description("Sequence name")),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleFindSequence,
	)

	srv.AddTool(
		mcplib.NewTool("run_script",
			mcplib.WithDescription("Run a Lua plugin script with the larsen module loaded"),
			mcplib.WithString("source", mcplib.Required(), mcplib.Description("Lua source")),
			mcplib.WithString("name", mcplib.Description("Script name used in logs")),
		),
		s.handleRunScript,
	)
}

// builderTool describes spec as a tool whose arguments are the builder's
// named params.
func builderTool(spec device.BuilderSpec) mcplib.Tool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription(spec.Help + " (builds the " + spec.Name + " command and sends it)"),
	}
	if destructive[spec.Name] {
		opts = append(opts, mcplib.WithDestructiveHintAnnotation(true))
	}
	for _, p := range spec.Params {
		popts := []mcplib.PropertyOption{mcplib.Description(paramHelp(p))}
		if !p.Optional {
			popts = append(popts, mcplib.Required())
		}
		switch p.Type {
		case device.ParamInt, device.ParamFloat:
			opts = append(opts, mcplib.WithNumber(p.Name, popts...))
		case device.ParamCoordinate, device.ParamObject:
			opts = append(opts, mcplib.WithObject(p.Name, popts...))
		default:
			opts = append(opts, mcplib.WithString(p.Name, popts...))
		}
	}
	return mcplib.NewTool(spec.Name, opts...)
}

func paramHelp(p device.Param) string {
	help := p.Help
	switch p.Type {
	case device.ParamCoordinate:
		help = "Coordinate {\"x\": ..., \"y\": ..., \"z\": ...}"
	case device.ParamStrings:
		help += " (comma separated)"
	}
	if help == "" {
		return p.Name
	}
	return help
}
