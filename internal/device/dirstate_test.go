package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/larsen-farm/plugintools/internal/env"
)

func TestDirState_BotState(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "location_data.json"), []byte(`{"position":{"x":1,"y":2,"z":3}}`), 0644)
	os.WriteFile(filepath.Join(dir, "pins.json"), []byte(`{"13":{"value":1}}`), 0644)
	os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{`), 0644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0644)

	state, err := NewDirState(dir, zerolog.Nop()).BotState(context.Background())
	if err != nil {
		t.Fatalf("BotState: %v", err)
	}
	if len(state) != 2 {
		t.Errorf("state has %d keys, want 2: %v", len(state), state)
	}
	if v, _ := Lookup(state, "pins", "13", "value"); v != 1.0 {
		t.Errorf("pin 13 = %v, want 1", v)
	}
}

func TestDirState_MissingDir(t *testing.T) {
	if _, err := NewDirState(filepath.Join(t.TempDir(), "nope"), zerolog.Nop()).BotState(context.Background()); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestClient_BotStateFromDir(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "location_data.json"), []byte(`{"position":{"x":5}}`), 0644)

	c, _ := newTestClient(t, env.Map{env.BotStateDir: dir})
	x, err := c.CurrentPosition(context.Background(), "x")
	if err != nil || x != 5.0 {
		t.Errorf("x = %v, %v, want 5", x, err)
	}
}

func TestDirState_Watch(t *testing.T) {
	dir := t.TempDir()
	ds := NewDirState(dir, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan map[string]any, 4)
	done := make(chan error, 1)
	go func() { done <- ds.Watch(ctx, func(s map[string]any) { updates <- s }) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(dir, "pins.json"), []byte(`{"4":{"value":0}}`), 0644)

	select {
	case s := <-updates:
		if _, ok := Lookup(s, "pins", "4"); !ok {
			t.Errorf("update = %v, want pins.4", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no update after writing a snapshot file")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}
