// Package config loads larsen.toml. The [env] table supplies values for the
// same variable names the device environment uses; the process environment
// always wins over the file.
package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/larsen-farm/plugintools/internal/env"
	"github.com/larsen-farm/plugintools/internal/secrets"
)

// Colour modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config holds the CLI and MCP server settings.
type Config struct {
	Output   OutputConfig      `mapstructure:"output"`
	API      APIConfig         `mapstructure:"api"`
	Secrets  SecretsConfig     `mapstructure:"secrets"`
	StateBus StateBusConfig    `mapstructure:"statebus"`
	Env      map[string]string `mapstructure:"env"`
}

// OutputConfig controls console rendering.
type OutputConfig struct {
	Color string `mapstructure:"color"`
}

// APIConfig controls the web API client.
type APIConfig struct {
	Verbose bool `mapstructure:"verbose"`
}

// SecretsConfig names the age identity used for ENC[...] values.
type SecretsConfig struct {
	Identity string `mapstructure:"identity"`
}

// StateBusConfig locates the NATS broker state snapshots are shared on.
// An empty URL with a Listen address makes larsenctl embed the broker.
type StateBusConfig struct {
	URL      string `mapstructure:"url"`
	Token    string `mapstructure:"token"`
	Listen   string `mapstructure:"listen"`
	StoreDir string `mapstructure:"store_dir"`
}

// LoadConfig reads the configuration from file, env vars, and defaults.
func LoadConfig(cfgFile string) (Config, error) {
	v := viper.New()

	v.SetDefault("output.color", ColorAuto)
	v.SetDefault("api.verbose", false)

	v.SetConfigType("toml")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("larsen")
		v.AddConfigPath("/etc/larsen")
		v.AddConfigPath("$HOME/.config/larsen")
		v.AddConfigPath(".")
	}

	v.BindEnv("output.color", "LARSEN_COLOR")
	v.BindEnv("api.verbose", "LARSEN_API_VERBOSE")
	v.BindEnv("secrets.identity", "LARSEN_SECRETS_IDENTITY")
	v.BindEnv("statebus.url", "LARSEN_STATEBUS_URL")
	v.BindEnv("statebus.token", "LARSEN_STATEBUS_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		// An explicitly named file must exist; the search paths are optional.
		if cfgFile != "" {
			return Config{}, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Output.Color {
	case ColorAuto, ColorAlways, ColorNever:
		return nil
	default:
		return fmt.Errorf("output.color: unknown mode %q (want auto, always or never)", c.Output.Color)
	}
}

// fileEnv looks up [env] entries. viper lowercases keys, so lookups do too.
type fileEnv map[string]string

func (f fileEnv) Lookup(key string) (string, bool) {
	v, ok := f[strings.ToLower(key)]
	return v, ok
}

// Source returns the environment the device and web API clients read: the
// process environment, then the [env] table, with ENC[...] values decrypted
// on lookup.
func (c Config) Source(logger zerolog.Logger) (env.Source, error) {
	base := env.Layered(env.OS(), fileEnv(c.Env))

	keys, err := secrets.LoadKeyring(env.OS(), c.Secrets.Identity)
	if err != nil {
		return nil, fmt.Errorf("load age identity: %w", err)
	}
	log := logger.With().Str("component", "config").Logger()
	return keys.Source(base, func(key string, err error) {
		log.Warn().Err(err).Str("key", key).Msg("cannot decrypt value, treating as unset")
	}), nil
}

// StateBusToken returns the state bus token, decrypting an ENC[...] value
// with the configured age identity.
func (c Config) StateBusToken() (string, error) {
	token := c.StateBus.Token
	if !secrets.IsEncrypted(token) {
		return token, nil
	}
	keys, err := secrets.LoadKeyring(env.OS(), c.Secrets.Identity)
	if err != nil {
		return "", fmt.Errorf("load age identity: %w", err)
	}
	plain, err := keys.Open(token)
	if err != nil {
		return "", fmt.Errorf("statebus.token: %w", err)
	}
	return plain, nil
}
