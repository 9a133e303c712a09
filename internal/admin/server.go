package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/angeloszaimis/relay-balancer/config"
)

// Server serves the control API on its own listener, separate from the
// client-facing acceptor.
type Server struct {
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// NewServer validates addr and binds it, so a busy or malformed admin
// address fails before anything else starts. Serve must be called to
// answer requests.
func NewServer(addr string, api *API) (*Server, error) {
	if err := config.ValidateHostPort(addr); err != nil {
		return nil, fmt.Errorf("admin address %q: %w", addr, err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("admin listen on %s: %w", addr, err)
	}

	return &Server{
		server: &http.Server{
			Handler:           api.Routes(),
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       30 * time.Second,
		},
		listener: ln,
		logger:   api.logger,
	}, nil
}

// Addr is the bound address, useful when the configured port was 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve answers requests until Shutdown and returns nil on a clean stop.
func (s *Server) Serve() error {
	s.logger.Info("Admin server listening", slog.String("addr", s.Addr().String()))

	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// Shutdown stops accepting, waits for in-flight admin requests until ctx
// ends and releases the listener even if Serve never ran.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
		err = cerr
	}
	return err
}
