// Package server hosts the daemon's JSON-RPC bridge on a local
// transport: a Unix socket (or named pipe on Windows) with TCP
// fallback.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/archfetch/archfetch/common"
	"github.com/archfetch/archfetch/pkg/logger"
)

const DEF_PORT = common.DefaultTCPPort

// Config holds configuration for the RPC endpoint.
type Config struct {
	// Port is the TCP fallback port when the socket transport is
	// unavailable.
	Port int
	// Secret enables Bearer token auth when non-empty. Local socket
	// access works without one.
	Secret string
}

// Server manages RPC connections from CLI clients over a local socket.
type Server struct {
	l          logger.Logger
	port       int
	secret     string
	bridge     jhttp.Bridge
	httpServer *http.Server
	socketFile string
}

// NewServer creates a Server exposing the given method set.
func NewServer(l logger.Logger, methods handler.Map, cfg *Config) *Server {
	if l == nil {
		l = logger.NewNopLogger()
	}
	port := DEF_PORT
	var secret string
	if cfg != nil {
		if cfg.Port > 0 {
			port = cfg.Port
		}
		secret = cfg.Secret
	}
	return &Server{
		l:      l,
		port:   port,
		secret: secret,
		bridge: jhttp.NewBridge(methods, nil),
	}
}

// Start begins serving RPC requests and blocks until the context is
// cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := s.createListener()
	if err != nil {
		return err
	}
	s.l.Info("listening on %s", listener.Addr().String())

	mux := http.NewServeMux()
	mux.Handle("/rpc", s.bridge)
	s.httpServer = &http.Server{
		Handler:           requireToken(s.secret, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server, closing the bridge and
// removing the socket file.
func (s *Server) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(shutdownCtx)
	}
	if cerr := s.bridge.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if s.socketFile != "" {
		_ = os.Remove(s.socketFile)
		s.socketFile = ""
	}
	return err
}
