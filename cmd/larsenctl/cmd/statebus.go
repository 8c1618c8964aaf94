package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/larsen-farm/plugintools/internal/statebus"
)

// openBus connects to the configured broker. Without a URL it embeds one,
// listening on statebus.listen when set. The returned func releases both.
func (a *app) openBus(ctx context.Context, allowEmbed bool) (*statebus.Bus, func(), error) {
	cfg := a.cfg.StateBus
	token, err := a.cfg.StateBusToken()
	if err != nil {
		return nil, nil, err
	}

	if cfg.URL != "" {
		b, err := statebus.Connect(ctx, cfg.URL, token, a.logger)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { b.Close() }, nil
	}
	if !allowEmbed {
		return nil, nil, errors.New("no state bus configured: set statebus.url or LARSEN_STATEBUS_URL")
	}

	scfg := statebus.ServerConfig{StoreDir: cfg.StoreDir, Token: token}
	if cfg.Listen != "" {
		host, port, err := net.SplitHostPort(cfg.Listen)
		if err != nil {
			return nil, nil, fmt.Errorf("statebus.listen: %w", err)
		}
		if scfg.Port, err = strconv.Atoi(port); err != nil {
			return nil, nil, fmt.Errorf("statebus.listen port: %w", err)
		}
		scfg.Host = host
	}
	srv, err := statebus.NewServer(scfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	nc, err := srv.Connect(token)
	if err != nil {
		srv.Shutdown()
		return nil, nil, err
	}
	b, err := statebus.New(ctx, nc, a.logger)
	if err != nil {
		nc.Close()
		srv.Shutdown()
		return nil, nil, err
	}
	return b, func() {
		nc.Drain()
		srv.Shutdown()
	}, nil
}
