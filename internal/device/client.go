// Package device talks to the Larsen device: it builds and validates
// celery-script commands, wraps them for RPC, and dispatches them over the
// plugin HTTP API or the v2 pipe transport. Without a transport, commands
// are printed instead of sent.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/larsen-farm/plugintools/internal/console"
	"github.com/larsen-farm/plugintools/internal/env"
	"github.com/larsen-farm/plugintools/pkg/celery"
)

const (
	endpointCeleryScript = "celery_script"
	endpointBotState     = "bot/state"
)

// Result records what a send produced: the command as built and the form
// that was (or would have been) transmitted.
type Result struct {
	Command celery.Command `json:"command"`
	Sent    celery.Command `json:"sent"`
}

// StateProvider returns the current device state document.
type StateProvider interface {
	BotState(ctx context.Context) (map[string]any, error)
}

// StateFunc adapts a function to StateProvider.
type StateFunc func(ctx context.Context) (map[string]any, error)

func (f StateFunc) BotState(ctx context.Context) (map[string]any, error) { return f(ctx) }

// Client dispatches commands to the device.
type Client struct {
	env     *env.Env
	http    *http.Client
	printer *console.Printer
	state   StateProvider
	logger  zerolog.Logger
	build   *Builder
}

// Option configures a Client.
type Option func(*Client)

// WithEnv sets the environment the client resolves transports from.
func WithEnv(src env.Source) Option {
	return func(c *Client) { c.env = env.New(src) }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPrinter sets where the no-transport fallback and local error reports
// are written.
func WithPrinter(p *console.Printer) Option {
	return func(c *Client) { c.printer = p }
}

// WithStateProvider replaces the device state source used by the getters.
func WithStateProvider(sp StateProvider) Option {
	return func(c *Client) { c.state = sp }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger.With().Str("component", "device").Logger() }
}

// NewClient returns a Client reading the process environment unless
// configured otherwise.
func NewClient(opts ...Option) *Client {
	c := &Client{
		env:     env.New(nil),
		http:    http.DefaultClient,
		printer: console.Stdout("auto"),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.build = NewBuilder(c)
	return c
}

// Commands returns a Builder whose validation failures are reported through
// this client.
func (c *Client) Commands() *Builder { return c.build }

// Env returns the client's environment view.
func (c *Client) Env() *env.Env { return c.env }

// ReportError sends deviceText to the device log when a transport is
// configured, and prints consoleText in red otherwise. Builders carry no
// context, so the report uses a background one.
func (c *Client) ReportError(consoleText, deviceText string) {
	c.reportError(context.Background(), consoleText, deviceText)
}

func (c *Client) reportError(ctx context.Context, consoleText, deviceText string) {
	if !c.env.PluginAPIAvailable() {
		c.printer.Println(c.printer.Error(consoleText))
		return
	}
	cmd, err := c.build.SendMessage(deviceText, "error")
	if err != nil {
		return
	}
	if _, err := c.send(ctx, cmd, "", true); err != nil {
		c.logger.Warn().Err(err).Str("message", deviceText).Msg("error report not delivered")
	}
}

// Error reports text through the device log or the console.
func (c *Client) Error(ctx context.Context, text string) {
	c.reportError(ctx, text, text)
}

// Send checks cmd, wraps it in an RPC envelope for the current device
// version and dispatches it. rpcID labels the envelope; empty means a fresh
// UUID.
func (c *Client) Send(ctx context.Context, cmd celery.Command, rpcID string) (Result, error) {
	return c.send(ctx, cmd, rpcID, false)
}

// send dispatches cmd. reporting marks a send that is itself an error
// report; its failures are logged locally and never reported again.
func (c *Client) send(ctx context.Context, cmd celery.Command, rpcID string, reporting bool) (Result, error) {
	if err := celery.Check(cmd); err != nil {
		if reporting {
			return Result{}, err
		}
		return Result{}, c.build.v.Fail("celery script", cmd)
	}

	sent := celery.Wrap(cmd, rpcID, c.env.LSOSVersion())
	res := Result{Command: cmd, Sent: sent}

	if tr, ok := c.env.PluginTransport(); ok {
		_, err := c.request(ctx, tr, http.MethodPost, endpointCeleryScript, &sent, reporting)
		return res, err
	}
	if pipes, ok := c.env.PipeTransport(); ok {
		return res, c.sendPipe(ctx, pipes, sent)
	}

	c.printer.Println(c.printer.CeleryScript(cmd))
	return res, nil
}

// Log posts message to the device log. It is the send_message builder plus
// Send.
func (c *Client) Log(ctx context.Context, message, messageType string, channels ...string) (Result, error) {
	cmd, err := c.build.SendMessage(message, messageType, channels...)
	if err != nil {
		return Result{}, err
	}
	return c.Send(ctx, cmd, "")
}

// request performs a plugin API call and returns the response body. Non-200
// replies are reported to the device log unless reporting is set.
func (c *Client) request(ctx context.Context, tr env.PluginTransport, method, endpoint string, payload *celery.Command, reporting bool) ([]byte, error) {
	var body io.Reader
	var shown string
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
		shown = string(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, tr.URL+"api/v1/"+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+tr.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		httpErr := &HTTPError{
			Endpoint:   endpoint,
			Payload:    shown,
			StatusCode: resp.StatusCode,
			Fatal:      c.env.PluginAPIAvailable(),
		}
		c.logger.Error().Str("endpoint", endpoint).Int("status", resp.StatusCode).Msg("plugin API request failed")
		if !reporting {
			msg := httpErr.Error()
			c.reportError(ctx, msg, msg)
		}
		return nil, httpErr
	}
	return data, nil
}

// BotState fetches the device state. A provider set with
// WithStateProvider answers first; otherwise the plugin API is used when it
// is configured, then the BOT_STATE_DIR snapshot. With none of them, the
// failure is reported and an empty state is returned.
func (c *Client) BotState(ctx context.Context) (map[string]any, error) {
	if c.state != nil {
		return c.state.BotState(ctx)
	}
	if tr, ok := c.env.PluginTransport(); ok {
		data, err := c.request(ctx, tr, http.MethodGet, endpointBotState, nil, false)
		if err != nil {
			return nil, err
		}
		var state map[string]any
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("decode bot state: %w", err)
		}
		return state, nil
	}
	if dir := c.env.BotStateDir(); dir != "" {
		return NewDirState(dir, c.logger).BotState(ctx)
	}
	c.Error(ctx, "Device info could not be retrieved.")
	return map[string]any{}, nil
}

