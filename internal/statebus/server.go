package statebus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// ServerConfig holds settings for the embedded broker.
type ServerConfig struct {
	StoreDir string
	Host     string // empty keeps the broker in-process only
	Port     int
	Token    string // If non-empty, requires token auth for NATS connections.
}

// Server is an embedded NATS broker with JetStream, for devices where no
// external broker runs.
type Server struct {
	ns     *server.Server
	logger zerolog.Logger
}

// NewServer starts the embedded broker and waits until it accepts
// connections.
func NewServer(cfg ServerConfig, logger zerolog.Logger) (*Server, error) {
	opts := &server.Options{
		JetStream:     true,
		StoreDir:      cfg.StoreDir,
		DontListen:    cfg.Host == "",
		Host:          cfg.Host,
		Port:          cfg.Port,
		Authorization: cfg.Token,
		NoLog:         true,
		NoSigs:        true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("nats server create: %w", err)
	}
	ns.SetLoggerV2(brokerLogger{logger.With().Str("component", "nats").Logger()}, false, false, false)

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server failed to become ready")
	}

	logger = logger.With().Str("component", "statebus").Logger()
	logger.Info().Str("client_url", ns.ClientURL()).Msg("embedded broker started")
	return &Server{ns: ns, logger: logger}, nil
}

// Connect opens a client connection to the embedded broker.
func (s *Server) Connect(token string) (*nats.Conn, error) {
	opts := []nats.Option{nats.InProcessServer(s.ns)}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	nc, err := nats.Connect(s.ns.ClientURL(), opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}

// ClientURL returns the URL other processes connect to.
func (s *Server) ClientURL() string { return s.ns.ClientURL() }

// Shutdown stops the broker and waits for it to exit.
func (s *Server) Shutdown() {
	s.logger.Info().Msg("shutting down embedded broker")
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}

// brokerLogger routes broker output to zerolog. Fatalf is logged at error
// level; the broker must never exit the process that embeds it.
type brokerLogger struct {
	zerolog.Logger
}

func (l brokerLogger) Noticef(format string, v ...any) { l.Info().Msgf(format, v...) }
func (l brokerLogger) Warnf(format string, v ...any)   { l.Warn().Msgf(format, v...) }
func (l brokerLogger) Fatalf(format string, v ...any)  { l.Error().Msgf(format, v...) }
func (l brokerLogger) Errorf(format string, v ...any)  { l.Error().Msgf(format, v...) }
func (l brokerLogger) Debugf(format string, v ...any)  { l.Debug().Msgf(format, v...) }
func (l brokerLogger) Tracef(format string, v ...any)  { l.Trace().Msgf(format, v...) }
