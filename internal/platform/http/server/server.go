// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/identity"
	"github.com/MahdiBaghbani/teamverify-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/logutil"
)

// Options configure a Server.
type Options struct {
	ListenAddr string
	// TrustForwardedHeaders takes the client address from X-Forwarded-For
	// and X-Real-IP. Enable only behind a proxy that sets them.
	TrustForwardedHeaders bool

	SessionRepo identity.SessionRepo
	PartyRepo   identity.PartyRepo

	// Health backs /healthz. Nil always reports ok.
	Health func(context.Context) error

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server wraps the HTTP server and the services mounted on it.
type Server struct {
	opts       Options
	httpServer *http.Server
	logger     *slog.Logger

	// Stored in mount order; closed in reverse order during shutdown.
	mountedServices []service.Service
}

// New creates a Server and mounts services under /api/<prefix>.
// Nil services are skipped.
func New(opts Options, logger *slog.Logger, services ...service.Service) (*Server, error) {
	if opts.SessionRepo == nil || opts.PartyRepo == nil {
		return nil, errors.New("server: session and party repositories are required")
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 30 * time.Second
	}

	s := &Server{opts: opts, logger: logutil.NoopIfNil(logger)}
	router := s.setupRoutes(services)

	s.httpServer = &http.Server{
		Addr:         opts.ListenAddr,
		Handler:      router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens on the configured address and blocks until shutdown.
// It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting server", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and all mounted services.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	httpErr := s.httpServer.Shutdown(ctx)

	for i := len(s.mountedServices) - 1; i >= 0; i-- {
		svc := s.mountedServices[i]
		if err := svc.Close(); err != nil {
			// best-effort; keep closing the rest
			s.logger.Warn("service close error", "service", svc.Prefix(), "error", err)
		} else {
			s.logger.Debug("service closed", "service", svc.Prefix())
		}
	}
	return httpErr
}
