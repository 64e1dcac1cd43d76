// Package api exposes the optional metrics listener: Prometheus metrics and a
// liveness probe served over HTTP while a scan or watch runs.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anstrom/dualscan/internal/logging"
	"github.com/anstrom/dualscan/internal/metrics"
)

// Server timeout constants.
const (
	serverShutdownTimeout = 5 * time.Second
	readHeaderTimeout     = 5 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
)

// Server serves /metrics and /healthz.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	metrics    *metrics.PrometheusMetrics
	logger     *logging.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New creates a metrics listener for addr. A nil pm uses the global metrics.
func New(addr string, pm *metrics.PrometheusMetrics) *Server {
	if pm == nil {
		pm = metrics.GetGlobalMetrics()
	}

	s := &Server{
		router:    mux.NewRouter(),
		metrics:   pm,
		logger:    logging.Default().WithComponent("api"),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.setupMiddleware(s.router),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return s
}

// Start listens and serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("metrics listener failed: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Starting metrics listener", "address", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics listener failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop() error {
	s.logger.Info("Stopping metrics listener")

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics listener shutdown failed: %w", err)
	}
	return nil
}

// Addr returns the bound address once Start is listening, else the
// configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Router returns the route table without middleware.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) setupRoutes() {
	metricsHandler := promhttp.HandlerFor(s.metrics.GetRegistry(), promhttp.HandlerOpts{})

	s.router.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.UpdateSystemMetrics()
		metricsHandler.ServeHTTP(w, r)
	})).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet, http.MethodHead)
}

// setupMiddleware wraps h with panic recovery and request logging.
func (s *Server) setupMiddleware(h http.Handler) http.Handler {
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(h)

	return handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
}

func (s *Server) logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	s.logger.Debug("HTTP request",
		"method", params.Request.Method,
		"path", params.URL.Path,
		"status", params.StatusCode,
		"size", params.Size,
		"remote_addr", params.Request.RemoteAddr)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "ok",
		"uptime":    s.metrics.GetUptime().Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
	}
	if updated := s.metrics.GetLastUpdate(); !updated.IsZero() {
		response["metrics_updated"] = updated.UTC()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err, "path", r.URL.Path)
	}
}

// recoveryLogger adapts Logger to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	logger *logging.Logger
}

func (l recoveryLogger) Println(args ...interface{}) {
	l.logger.Error("Panic in HTTP handler", "error", fmt.Sprint(args...))
}
