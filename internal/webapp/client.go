// Package webapp is a client for the farm-management web API. Requests are
// authenticated with the token in LARSEN_API_TOKEN, whose issuer claim also
// names the server.
package webapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/larsen-farm/plugintools/internal/console"
	"github.com/larsen-farm/plugintools/internal/env"
)

// ErrSequenceNotFound is returned by FindSequenceByName.
var ErrSequenceNotFound = errors.New("sequence not found")

// ErrPropertyNotFound is returned by GetProperty when the record lacks the
// field.
var ErrPropertyNotFound = errors.New("property not found")

// Response is the outcome of a web API request. When no token is available
// nothing is sent and JSON holds the request summary.
type Response struct {
	JSON       any  `json:"json"`
	StatusCode int  `json:"status_code"`
	Sent       bool `json:"sent"`
}

// OK reports whether the request was sent and answered with 200.
func (r Response) OK() bool { return r.Sent && r.StatusCode == http.StatusOK }

// Client sends requests to the web API.
type Client struct {
	env     *env.Env
	http    *http.Client
	printer *console.Printer
	verbose bool
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithEnv(src env.Source) Option {
	return func(c *Client) { c.env = env.New(src) }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithPrinter(p *console.Printer) Option {
	return func(c *Client) { c.printer = p }
}

// WithVerbose prints a summary line for every request.
func WithVerbose(verbose bool) Option {
	return func(c *Client) { c.verbose = verbose }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger.With().Str("component", "webapp").Logger() }
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
	return c
}

// Request sends method to endpoint, optionally suffixed by /id, with payload
// as the JSON body. A nil payload sends no body; GET and DELETE never send
// one. Non-200 replies are printed with the request summary but are not
// errors: the decoded body is returned for the caller to inspect.
func (c *Client) Request(ctx context.Context, method, endpoint, id string, payload any) (Response, error) {
	method = strings.ToUpper(method)
	if method == http.MethodGet || method == http.MethodDelete {
		payload = nil
	}
	full := endpoint
	if id != "" {
		full += "/" + id
	}

	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return Response{}, fmt.Errorf("marshal %s payload: %w", endpoint, err)
		}
	}
	summary := fmt.Sprintf("%s /api/%s %s", method, full, data)

	info, err := ResolveInfo(c.env)
	if err != nil {
		c.logger.Debug().Err(err).Msg("web API unavailable, printing request")
		c.printer.Println(summary)
		return Response{JSON: summary}, nil
	}

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, info.URL+full, body)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+info.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%s /api/%s: %w", method, full, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	result := Response{JSON: decodeBody(raw), StatusCode: resp.StatusCode, Sent: true}

	details := c.printer.StatusCode(resp.StatusCode) + ": " + c.printer.Bold(summary)
	if c.verbose {
		c.printer.Println("")
		c.printer.Println(details)
	}
	if resp.StatusCode != http.StatusOK && !c.verbose {
		c.printer.Println(details)
		c.printer.Println(show(result.JSON))
	}
	c.logger.Debug().Str("method", method).Str("endpoint", full).Int("status", resp.StatusCode).Msg("web API request")
	return result, nil
}

// decodeBody returns the parsed JSON body, or the (summarized) text when the
// body is not JSON.
func decodeBody(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return summarize(string(raw))
}

func show(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func (c *Client) Get(ctx context.Context, endpoint, id string) (Response, error) {
	return c.Request(ctx, http.MethodGet, endpoint, id, nil)
}

func (c *Client) Post(ctx context.Context, endpoint string, payload any) (Response, error) {
	return c.Request(ctx, http.MethodPost, endpoint, "", payload)
}

func (c *Client) Put(ctx context.Context, endpoint, id string, payload any) (Response, error) {
	return c.Request(ctx, http.MethodPut, endpoint, id, payload)
}

func (c *Client) Patch(ctx context.Context, endpoint, id string, payload any) (Response, error) {
	return c.Request(ctx, http.MethodPatch, endpoint, id, payload)
}

func (c *Client) Delete(ctx context.Context, endpoint, id string) (Response, error) {
	return c.Request(ctx, http.MethodDelete, endpoint, id, nil)
}
