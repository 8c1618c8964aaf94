package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/rs/zerolog"

	"github.com/larsen-farm/plugintools/internal/secrets"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "larsen.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Output.Color != ColorAuto {
		t.Errorf("Output.Color = %q, want %q", cfg.Output.Color, ColorAuto)
	}
	if cfg.API.Verbose {
		t.Error("API.Verbose should default to false")
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
[output]
color = "never"

[api]
verbose = true

[statebus]
url = "nats://127.0.0.1:4222"

[env]
PLUGIN_URL = "http://localhost:27347/"
plugin_name_twenty = "21"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Output.Color != ColorNever {
		t.Errorf("Output.Color = %q, want never", cfg.Output.Color)
	}
	if !cfg.API.Verbose {
		t.Error("API.Verbose = false, want true")
	}
	if cfg.StateBus.URL != "nats://127.0.0.1:4222" {
		t.Errorf("StateBus.URL = %q", cfg.StateBus.URL)
	}
	if got := cfg.Env["plugin_url"]; got != "http://localhost:27347/" {
		t.Errorf("Env[plugin_url] = %q", got)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "[output]\ncolor = \"never\"\n")
	t.Setenv("LARSEN_COLOR", "always")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Output.Color != ColorAlways {
		t.Errorf("Output.Color = %q, want always", cfg.Output.Color)
	}
}

func TestLoadConfig_BadColor(t *testing.T) {
	path := writeConfig(t, "[output]\ncolor = \"rainbow\"\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown colour mode")
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestSource_Layering(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(secrets.EnvAgeKey, "")
	t.Setenv(secrets.EnvAgeKeyFile, "")
	t.Setenv("PLUGIN_TOKEN", "from-process")

	cfg := Config{Env: map[string]string{
		"plugin_token": "from-file",
		"plugin_url":   "http://device/",
	}}
	src, err := cfg.Source(zerolog.Nop())
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if got, _ := src.Lookup("PLUGIN_TOKEN"); got != "from-process" {
		t.Errorf("PLUGIN_TOKEN = %q, process environment should win", got)
	}
	if got, _ := src.Lookup("PLUGIN_URL"); got != "http://device/" {
		t.Errorf("PLUGIN_URL = %q, want file value", got)
	}
}

func TestSource_DecryptsFileValues(t *testing.T) {
	identity, _ := age.GenerateX25519Identity()
	t.Setenv(secrets.EnvAgeKey, identity.String())

	enc, err := secrets.Seal("api-token", identity.Recipient())
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{Env: map[string]string{"larsen_api_token": enc}}
	src, err := cfg.Source(zerolog.Nop())
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if got, ok := src.Lookup("LARSEN_API_TOKEN"); !ok || got != "api-token" {
		t.Errorf("LARSEN_API_TOKEN = %q, %v, want decrypted token", got, ok)
	}
}

func TestStateBusToken(t *testing.T) {
	t.Setenv(secrets.EnvAgeKey, "")
	t.Setenv(secrets.EnvAgeKeyFile, "")
	t.Setenv("HOME", t.TempDir())

	plain := Config{StateBus: StateBusConfig{Token: "farm-secret"}}
	if got, err := plain.StateBusToken(); err != nil || got != "farm-secret" {
		t.Errorf("plain token = %q, %v", got, err)
	}

	identity, _ := age.GenerateX25519Identity()
	enc, err := secrets.Seal("farm-secret", identity.Recipient())
	if err != nil {
		t.Fatal(err)
	}
	sealed := Config{StateBus: StateBusConfig{Token: enc}}
	if _, err := sealed.StateBusToken(); !errors.Is(err, secrets.ErrNoIdentity) {
		t.Errorf("err = %v, want ErrNoIdentity without a key", err)
	}

	t.Setenv(secrets.EnvAgeKey, identity.String())
	if got, err := sealed.StateBusToken(); err != nil || got != "farm-secret" {
		t.Errorf("decrypted token = %q, %v", got, err)
	}
}
