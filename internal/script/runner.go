// Package script runs plugin scripts written in Lua against a device. The
// global larsen table exposes the command builders, the state getters, the
// plugin config resolver and the web API.
package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/larsen-farm/plugintools/internal/device"
	"github.com/larsen-farm/plugintools/internal/pluginconfig"
	"github.com/larsen-farm/plugintools/internal/webapp"
	"github.com/larsen-farm/plugintools/pkg/celery"
)

// Device is the part of the device client scripts use. *device.Client
// implements it.
type Device interface {
	Commands() *device.Builder
	Send(ctx context.Context, cmd celery.Command, rpcID string) (device.Result, error)
	Log(ctx context.Context, message, messageType string, channels ...string) (device.Result, error)
	BotState(ctx context.Context) (map[string]any, error)
	CurrentPosition(ctx context.Context, axis string) (any, error)
	PinValue(ctx context.Context, pin int) (any, error)
}

// WebAPI is the part of the web app client scripts use.
type WebAPI interface {
	Request(ctx context.Context, method, endpoint, id string, payload any) (webapp.Response, error)
}

// Runner executes scripts. A Runner is not safe for concurrent use.
type Runner struct {
	dev     Device
	api     WebAPI
	config  *pluginconfig.Resolver
	logger  zerolog.Logger
	timeout time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithWebAPI exposes api as larsen.api.
func WithWebAPI(api WebAPI) Option { return func(r *Runner) { r.api = api } }

// WithResolver exposes res as larsen.config and larsen.set_config.
func WithResolver(res *pluginconfig.Resolver) Option { return func(r *Runner) { r.config = res } }

func WithLogger(logger zerolog.Logger) Option { return func(r *Runner) { r.logger = logger } }

// WithTimeout bounds a single run. Zero means no limit.
func WithTimeout(d time.Duration) Option { return func(r *Runner) { r.timeout = d } }

// New returns a Runner sending through dev.
func New(dev Device, opts ...Option) *Runner {
	r := &Runner{dev: dev, logger: zerolog.Nop()}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.logger.With().Str("component", "script").Logger()
	return r
}

// RunFile runs the script at path, named after its base file name.
func (r *Runner) RunFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return r.Run(ctx, name, string(src))
}

// Run executes source. When a device call fails fatally the script stops and
// that error is returned, so device.IsFatal still applies to it.
func (r *Runner) Run(ctx context.Context, name, source string) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	L := NewSandboxedState(name, r.logger)
	defer L.Close()
	L.SetContext(ctx)

	m := &moduleContext{
		ctx:    ctx,
		name:   name,
		dev:    r.dev,
		api:    r.api,
		config: r.config,
		logger: r.logger.With().Str("script", name).Logger(),
	}
	registerLarsenModule(L, m)

	start := time.Now()
	err := L.DoString(source)
	switch {
	case m.fatal != nil:
		return fmt.Errorf("script %s: %w", name, m.fatal)
	case err != nil && ctx.Err() != nil:
		return fmt.Errorf("script %s: %w", name, ctx.Err())
	case err != nil:
		return fmt.Errorf("script %s: %w", name, err)
	}

	r.logger.Debug().
		Str("script", name).
		Dur("elapsed", time.Since(start)).
		Msg("script finished")
	return nil
}

// IsTimeout reports whether err ended a run because its deadline passed.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
