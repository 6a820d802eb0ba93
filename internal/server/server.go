package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielpatrickdp/matchrank/internal/ensemble"
	"github.com/danielpatrickdp/matchrank/internal/scheduler"
	"github.com/danielpatrickdp/matchrank/internal/weights"
)

// Server encapsulates the HTTP API, providing controlled startup and
// shutdown around the scoring and administrative routes.
type Server struct {
	server *http.Server
}

// ListenAndServe starts the HTTP server. Blocks until the server stops;
// returns http.ErrServerClosed after a graceful Shutdown.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, letting active requests finish
// within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// NewServer creates a server exposing scoring plus the admin surface
// (weight inspection, history, out-of-cycle retrains).
func NewServer(
	address string,
	scorer *ensemble.Scorer,
	store *weights.Store,
	sched *scheduler.Scheduler,
) *Server {
	router := NewApiV1Router(scorer, store, sched)
	return &Server{&http.Server{
		Addr:           address,
		Handler:        router.Mux(),
		ReadTimeout:    time.Second * 5,
		WriteTimeout:   time.Second * 30, // retrain runs respond synchronously
		MaxHeaderBytes: 1024 * 10,
	}}
}
