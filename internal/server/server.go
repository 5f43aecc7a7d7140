// Package server exposes the bridge's health, lifecycle state and metrics
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/devbridge/internal/bridgestate"
	"github.com/gaspardpetit/devbridge/internal/metrics"
)

// StateSource provides lifecycle snapshots.
type StateSource interface {
	Snapshot() bridgestate.State
}

// Options configures the status server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	State          StateSource
	Log            zerolog.Logger
}

// New constructs the HTTP handler for the status server. Metrics are served
// from a private registry so repeated construction never collides.
func New(opts Options) http.Handler {
	r := chi.NewRouter()
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}

	preg := prometheus.NewRegistry()
	metrics.Register(preg)

	r.Get("/healthz", healthz(opts.State))
	r.Route("/api", func(ar chi.Router) {
		ar.Get("/state", stateJSON(opts.State))
	})
	r.Get("/state", StatusHandler())
	r.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))
	return r
}

func healthz(src StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := src.Snapshot()
		code := http.StatusOK
		if st.Status != bridgestate.StatusReady {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = fmt.Fprintf(w, `{"status":%q}`, st.Status)
	}
}

func stateJSON(src StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(src.Snapshot())
	}
}

// Server is a running status listener.
type Server struct {
	srv  *http.Server
	ln   net.Listener
	log  zerolog.Logger
	done chan struct{}
}

// Start binds opts.Addr and serves the status handler in the background.
func Start(opts Options) (*Server, error) {
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("status listener: bind %s: %w", opts.Addr, err)
	}
	s := &Server{
		srv:  &http.Server{Handler: New(opts), ReadHeaderTimeout: 10 * time.Second},
		ln:   ln,
		log:  opts.Log.With().Str("endpoint", "status").Logger(),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("serve")
		}
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	if err != nil {
		return fmt.Errorf("close status listener: %w", err)
	}
	return nil
}
