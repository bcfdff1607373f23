package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Server wraps http.Server so the process can run and stop it like the
// gRPC server.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, h http.Handler, readTimeout, idleTimeout time.Duration) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: readTimeout,
		IdleTimeout:       idleTimeout,
	}}
}

func (s *Server) ListenAndServe() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
