// Package debug runs the optional diagnostics HTTP server that exposes the
// bridge metrics and the Go runtime profiler.
package debug

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server serves /metrics from a Prometheus registry and the pprof handlers
// under /debug.
type Server struct {
	logger   logrus.FieldLogger
	listener net.Listener
	server   *http.Server
}

// NewRouter returns the handler tree served by the debug server.
func NewRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	// See https://golang.org/pkg/net/http/pprof/
	r.Mount("/debug", middleware.Profiler())
	return r
}

// StartUtilities spins off the debug HTTP server on address. The server runs
// in its own goroutine until Shutdown is called.
func StartUtilities(logger logrus.FieldLogger, address string, gatherer prometheus.Gatherer) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	s := &Server{
		logger:   logger,
		listener: listener,
		server:   &http.Server{Handler: NewRouter(gatherer)},
	}
	logger.Infof("starting debug server on %s", listener.Addr())

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("error running debug server: %s", err)
		}
	}()
	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
