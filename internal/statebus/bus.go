// Package statebus shares device state snapshots over NATS. Every snapshot
// is published on Subject and kept as the current value of a JetStream
// key-value bucket, so late subscribers can read it without waiting for the
// next change.
package statebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	// Subject carries one JSON state document per message.
	Subject = "larsen.state"
	// Bucket is the JetStream key-value bucket holding the current document.
	Bucket = "larsen_state"

	keyCurrent = "current"
)

// ErrNoState is returned by BotState before anything was published.
var ErrNoState = errors.New("statebus: no state published yet")

// Bus publishes and reads state documents.
type Bus struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	owned  bool
	logger zerolog.Logger
}

// Connect dials url and opens the bus. Close releases the connection.
func Connect(ctx context.Context, url, token string, logger zerolog.Logger) (*Bus, error) {
	opts := []nats.Option{nats.Name("larsen-plugintools")}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	b, err := New(ctx, nc, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}
	b.owned = true
	return b, nil
}

// New opens the bus on an existing connection, creating the bucket when
// needed. The caller keeps ownership of nc.
func New(ctx context.Context, nc *nats.Conn, logger zerolog.Logger) (*Bus, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream init: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      Bucket,
		Description: "current device state document",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", Bucket, err)
	}
	return &Bus{
		nc:     nc,
		kv:     kv,
		logger: logger.With().Str("component", "statebus").Logger(),
	}, nil
}

// Publish stores state as the current document and broadcasts it.
func (b *Bus) Publish(ctx context.Context, state map[string]any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if _, err := b.kv.Put(ctx, keyCurrent, data); err != nil {
		return fmt.Errorf("store state: %w", err)
	}
	if err := b.nc.Publish(Subject, data); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}
	b.logger.Debug().Int("bytes", len(data)).Msg("state published")
	return nil
}

// BotState returns the current document. It satisfies
// device.StateProvider.
func (b *Bus) BotState(ctx context.Context) (map[string]any, error) {
	entry, err := b.kv.Get(ctx, keyCurrent)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	return decode(entry.Value())
}

// Subscribe calls fn with every document published after the call.
// Undecodable messages are logged and skipped.
func (b *Bus) Subscribe(fn func(map[string]any)) (*nats.Subscription, error) {
	return b.nc.Subscribe(Subject, func(msg *nats.Msg) {
		state, err := decode(msg.Data)
		if err != nil {
			b.logger.Warn().Err(err).Msg("skipping undecodable state message")
			return
		}
		fn(state)
	})
}

// Close drains the connection when the bus opened it.
func (b *Bus) Close() error {
	if !b.owned {
		return nil
	}
	return b.nc.Drain()
}

func decode(data []byte) (map[string]any, error) {
	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}
