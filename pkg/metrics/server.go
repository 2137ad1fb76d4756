// Package metrics exposes the process's Prometheus registry over HTTP.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civicdata/registry-ingest/pkg/logging"
)

// Server serves /metrics on its own listener.
type Server struct {
	srv  *http.Server
	addr string
}

// Start listens on addr and serves in the background.
func Start(addr string) (*Server, error) {
	logger := logging.NewLogger("metrics")

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics endpoint listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics endpoint failed")
		}
	}()
	return &Server{srv: srv, addr: ln.Addr().String()}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string { return s.addr }

// Stop shuts the endpoint down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
