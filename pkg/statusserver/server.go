// Package statusserver exposes a running extraction over HTTP for
// monitoring: health of the process and its checkpoint store, the current
// run summary, Prometheus metrics and build info.
package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/otherjamesbrown/judgeroute/pkg/batch"
	"github.com/otherjamesbrown/judgeroute/pkg/buildinfo"
	"github.com/otherjamesbrown/judgeroute/pkg/checkpoint"
	"github.com/otherjamesbrown/judgeroute/pkg/logging"
)

// DefaultAddr is where the server listens when --listen is given without a
// value.
const DefaultAddr = ":9464"

const healthTimeout = 2 * time.Second

// Source supplies read-only views of the run. *batch.Orchestrator
// satisfies it.
type Source interface {
	Summary() batch.Summary
	Progress() *batch.Progress
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status     string             `json:"status"`
	Checkpoint *checkpoint.Health `json:"checkpoint,omitempty"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Summary  batch.Summary          `json:"summary"`
	Progress *batch.ProgressSnapshot `json:"progress,omitempty"`
	Percent  float64                `json:"percent_complete"`
}

// Server serves the monitoring endpoints.
type Server struct {
	source   Source
	gatherer prometheus.Gatherer
	logger   logging.Logger
	health   func(context.Context) checkpoint.Health

	httpServer *http.Server
	listener   net.Listener
	errCh      chan error
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithStoreHealth adds the checkpoint store to /healthz. An unhealthy
// store turns the response into a 503.
func WithStoreHealth(check func(context.Context) checkpoint.Health) Option {
	return func(s *Server) { s.health = check }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server over source.
func New(source Source, opts ...Option) *Server {
	s := &Server{
		source:   source,
		gatherer: prometheus.DefaultGatherer,
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the chi router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/version", buildinfo.Handler())
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	code := http.StatusOK
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		h := s.health(ctx)
		resp.Checkpoint = &h
		if !h.Healthy {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{Summary: s.source.Summary()}
	if p := s.source.Progress(); p != nil {
		snap := p.Snapshot()
		resp.Progress = &snap
		resp.Percent = snap.PercentComplete()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Start listens on addr and serves in the background. It returns once the
// listener is bound so the caller can report the real address.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status server listen %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.errCh = make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server stopped", logging.Err(err))
			s.errCh <- err
		}
		close(s.errCh)
	}()
	s.logger.Info("Status server listening", logging.F("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return <-s.errCh
}
