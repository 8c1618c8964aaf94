package statebus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

func startBus(t *testing.T) *Bus {
	t.Helper()
	srv, err := NewServer(ServerConfig{StoreDir: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	nc, err := srv.Connect("")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(nc.Close)

	b, err := New(context.Background(), nc, zerolog.Nop())
	if err != nil {
		t.Fatalf("open bus: %v", err)
	}
	return b
}

func TestBotState_BeforePublish(t *testing.T) {
	b := startBus(t)
	if _, err := b.BotState(context.Background()); !errors.Is(err, ErrNoState) {
		t.Errorf("err = %v, want ErrNoState", err)
	}
}

func TestPublish_StoresCurrent(t *testing.T) {
	b := startBus(t)
	ctx := context.Background()

	for _, x := range []float64{1, 2} {
		state := map[string]any{"location_data": map[string]any{"position": map[string]any{"x": x}}}
		if err := b.Publish(ctx, state); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	got, err := b.BotState(ctx)
	if err != nil {
		t.Fatalf("BotState: %v", err)
	}
	pos := got["location_data"].(map[string]any)["position"].(map[string]any)
	if pos["x"] != 2.0 {
		t.Errorf("x = %v, want latest value 2", pos["x"])
	}
}

func TestSubscribe(t *testing.T) {
	b := startBus(t)

	got := make(chan map[string]any, 1)
	sub, err := b.Subscribe(func(state map[string]any) { got <- state })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	// Garbage on the subject is skipped.
	if err := b.nc.Publish(Subject, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(context.Background(), map[string]any{"pins": map[string]any{}}); err != nil {
		t.Fatal(err)
	}

	select {
	case state := <-got:
		if _, ok := state["pins"]; !ok {
			t.Errorf("state = %v", state)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no state received")
	}
}

func TestServerTokenAuth(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		StoreDir: t.TempDir(),
		Host:     "127.0.0.1",
		Port:     -1,
		Token:    "farm-secret",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Shutdown()

	if nc, err := nats.Connect(srv.ClientURL()); err == nil {
		nc.Close()
		t.Fatal("connection without token succeeded")
	}

	b, err := Connect(context.Background(), srv.ClientURL(), "farm-secret", zerolog.Nop())
	if err != nil {
		t.Fatalf("Connect with token: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
