package server

import (
	"context"
	"net/http"
	"time"

	"chequeo/internal/engine"
	"chequeo/internal/score"

	"github.com/prometheus/client_golang/prometheus"
)

// Server encapsulates the HTTP server of the application, providing controlled startup and shutdown.
type Server struct {
	server *http.Server
}

// ListenAndServe starts the HTTP server and blocks until it stops. After
// Shutdown it returns http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, letting active requests complete
// within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the configured routes.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// NewServer creates a server listening on address. Batch operations go
// through the record store one request at a time, so the write timeout is
// generous.
func NewServer(
	address string,
	scores score.Service,
	rules engine.Service,
	gatherer prometheus.Gatherer,
) *Server {
	router := NewApiV1Router(scores, rules, gatherer)
	s := Server{&http.Server{
		Addr:              address,
		Handler:           router.Mux(),
		ReadTimeout:       time.Second * 5,
		ReadHeaderTimeout: time.Second * 3,
		WriteTimeout:      time.Minute * 2,
		MaxHeaderBytes:    1024 * 10,
	}}

	return &s
}
