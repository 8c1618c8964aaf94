// Package pluginconfig resolves plugin configuration inputs. A value comes
// from the environment override <snake_case(plugin)>_<name> when set, and
// from the default declared in the plugin manifest otherwise.
package pluginconfig

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/larsen-farm/plugintools/internal/device"
	"github.com/larsen-farm/plugintools/internal/env"
	"github.com/larsen-farm/plugintools/pkg/celery"
)

// ValueType selects the coercion applied to environment overrides.
type ValueType int

const (
	Int ValueType = iota
	String
	Float
	Bool
)

func (t ValueType) String() string {
	switch t {
	case Int:
		return "int"
	case String:
		return "string"
	case Float:
		return "float"
	case Bool:
		return "bool"
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// ParseValueType maps "int", "string", "float" or "bool" to a ValueType.
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "int", "":
		return Int, nil
	case "string", "str":
		return String, nil
	case "float":
		return Float, nil
	case "bool":
		return Bool, nil
	}
	return Int, fmt.Errorf("unknown value type %q", s)
}

// UnresolvedConfigError means neither the manifest nor the environment
// supplied a value.
type UnresolvedConfigError struct {
	Plugin string
	Name   string
	EnvVar string
	// OnDevice is set when a device transport was configured.
	OnDevice bool
}

// Fatal reports whether the running plugin should stop.
func (e *UnresolvedConfigError) Fatal() bool { return e.OnDevice }

func (e *UnresolvedConfigError) Error() string {
	return fmt.Sprintf("config %q of plugin %q unresolved: %s not set", e.Name, e.Plugin, e.EnvVar)
}

// Device is the part of the device client the resolver uses.
type Device interface {
	BotState(ctx context.Context) (map[string]any, error)
	Log(ctx context.Context, message, messageType string, channels ...string) (device.Result, error)
	Send(ctx context.Context, cmd celery.Command, rpcID string) (device.Result, error)
	Error(ctx context.Context, text string)
}

// Resolver looks up plugin configuration values.
type Resolver struct {
	dev    Device
	env    *env.Env
	logger zerolog.Logger
}

// New returns a Resolver reading state from dev and overrides from src.
func New(dev Device, src env.Source, logger zerolog.Logger) *Resolver {
	return &Resolver{
		dev:    dev,
		env:    env.New(src),
		logger: logger.With().Str("component", "pluginconfig").Logger(),
	}
}

// EnvVar returns the override variable for plugin's input name.
func EnvVar(plugin, name string) string {
	return device.SnakeCase(plugin) + "_" + name
}

// GetValue resolves plugin's input name. The manifest is fetched from the
// device on every call.
func (r *Resolver) GetValue(ctx context.Context, plugin, name string, t ValueType) (any, error) {
	key := EnvVar(plugin, name)

	state, err := r.dev.BotState(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch device state: %w", err)
	}
	if _, ok := device.Lookup(state, "process_info", "plugins", plugin); !ok {
		r.warn(ctx, fmt.Sprintf("Plugin manifest for `%s` not found.", plugin))
		return r.override(ctx, plugin, name, key, t)
	}

	var entries []Entry
	if raw, ok := device.Lookup(state, "process_info", "plugins", plugin, "config"); ok {
		entries, err = Entries(raw, r.env.LSOSAtLeast(8, 0, 0))
		if err != nil {
			r.logger.Warn().Err(err).Str("plugin", plugin).Msg("unreadable manifest config")
		}
	}

	found := defaults(entries, name)
	if len(found) != 1 {
		r.warn(ctx, fmt.Sprintf("Config name `%s` not found.", name))
		return r.override(ctx, plugin, name, key, t)
	}

	if v, ok := r.env.Get(key); ok {
		return coerce(v, t)
	}
	r.info(ctx, fmt.Sprintf("Using the default value for `%s`.", name))
	return found[0], nil
}

func (r *Resolver) override(ctx context.Context, plugin, name, key string, t ValueType) (any, error) {
	v, ok := r.env.Get(key)
	if !ok {
		err := &UnresolvedConfigError{Plugin: plugin, Name: name, EnvVar: key, OnDevice: r.env.PluginAPIAvailable()}
		r.logger.Error().Str("plugin", plugin).Str("env_var", key).Msg("config unresolved")
		r.dev.Error(ctx, err.Error())
		return nil, err
	}
	return coerce(v, t)
}

func coerce(v string, t ValueType) (any, error) {
	var (
		out any
		err error
	)
	switch t {
	case String:
		return v, nil
	case Int:
		var n int64
		n, err = strconv.ParseInt(strings.TrimSpace(v), 10, 0)
		out = int(n)
	case Float:
		out, err = cast.ToFloat64E(v)
	case Bool:
		out, err = cast.ToBoolE(v)
	default:
		return nil, fmt.Errorf("unsupported value type %s", t)
	}
	if err != nil {
		return nil, fmt.Errorf("coerce %q to %s: %w", v, t, err)
	}
	return out, nil
}

func (r *Resolver) warn(ctx context.Context, msg string) {
	r.logger.Warn().Msg(msg)
	if _, err := r.dev.Log(ctx, msg, "warn"); err != nil {
		r.logger.Debug().Err(err).Msg("device log failed")
	}
}

func (r *Resolver) info(ctx context.Context, msg string) {
	r.logger.Info().Msg(msg)
	if _, err := r.dev.Log(ctx, msg, "info"); err != nil {
		r.logger.Debug().Err(err).Msg("device log failed")
	}
}

// Int resolves an integer input.
func (r *Resolver) Int(ctx context.Context, plugin, name string) (int, error) {
	v, err := r.GetValue(ctx, plugin, name, Int)
	if err != nil {
		return 0, err
	}
	return cast.ToIntE(v)
}

// String resolves a string input.
func (r *Resolver) String(ctx context.Context, plugin, name string) (string, error) {
	v, err := r.GetValue(ctx, plugin, name, String)
	if err != nil {
		return "", err
	}
	return cast.ToStringE(v)
}

// Float resolves a numeric input.
func (r *Resolver) Float(ctx context.Context, plugin, name string) (float64, error) {
	v, err := r.GetValue(ctx, plugin, name, Float)
	if err != nil {
		return 0, err
	}
	return cast.ToFloat64E(v)
}

// Bool resolves a boolean input.
func (r *Resolver) Bool(ctx context.Context, plugin, name string) (bool, error) {
	v, err := r.GetValue(ctx, plugin, name, Bool)
	if err != nil {
		return false, err
	}
	return cast.ToBoolE(v)
}

// SetValue stores value as the override for plugin's input name on the
// device. Nothing is read back.
func (r *Resolver) SetValue(ctx context.Context, plugin, name string, value any) (device.Result, error) {
	cmd, err := device.NewBuilder(nil).SetUserEnv(EnvVar(plugin, name), value)
	if err != nil {
		return device.Result{}, err
	}
	return r.dev.Send(ctx, cmd, "")
}
