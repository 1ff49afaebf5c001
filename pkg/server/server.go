// Package server provides the HTTP surface for running and browsing
// comparisons.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zen-systems/modelcompare/pkg/adapter"
	"github.com/zen-systems/modelcompare/pkg/compare"
	"github.com/zen-systems/modelcompare/pkg/store"
	"go.uber.org/zap"
)

// Comparer runs comparisons. *compare.Orchestrator satisfies it.
type Comparer interface {
	Compare(ctx context.Context, prompt string) (*compare.Result, error)
	Stream(ctx context.Context, prompt string, sink compare.EventSink) (*compare.Result, error)
}

// Gateway persists comparisons. Defined here (consumer-side) rather than
// importing the concrete store; *store.SQLiteStore satisfies it.
type Gateway interface {
	Create(ctx context.Context, prompt string, responses []adapter.Response, metrics compare.Metrics) (*store.Comparison, error)
	Get(ctx context.Context, id string) (*store.Comparison, error)
	List(ctx context.Context, page, limit int) ([]store.Comparison, int, error)
}

// Options configures a Server. Zero values are usable.
type Options struct {
	Addr string
	// RateLimitRPS <= 0 disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int
	// CompareTimeout bounds one comparison; zero means no bound.
	CompareTimeout time.Duration
	// Gatherer backs /metrics. Nil falls back to the default registry.
	Gatherer prometheus.Gatherer
	// Recorder receives per-request metrics; may be nil.
	Recorder HTTPRecorder
}

// Server is the modelcompare HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	mux        *http.ServeMux
	comparer   Comparer
	gateway    Gateway
	logger     *zap.Logger
	opts       Options
}

// New creates a Server with middleware and routes.
func New(opts Options, comparer Comparer, gateway Gateway, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		mux:      http.NewServeMux(),
		comparer: comparer,
		gateway:  gateway,
		logger:   logger,
		opts:     opts,
	}
	s.registerRoutes()

	skip := []string{"/healthz", "/metrics"}

	// Middleware chain: outermost listed first.
	s.handler = Chain(s.mux,
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger, opts.Recorder, skip),
		RateLimitMiddleware(opts.RateLimitRPS, opts.RateLimitBurst, skip),
	)

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: a response lasts as long as the slowest provider.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	s.mux.HandleFunc("POST /api/compare", s.handleCompare)
	s.mux.HandleFunc("POST /api/compare/stream", s.handleCompareStream)
	s.mux.HandleFunc("GET /api/comparisons", s.handleListComparisons)
	s.mux.HandleFunc("POST /api/comparisons", s.handleCreateComparison)
	s.mux.HandleFunc("GET /api/comparisons/{id}", s.handleGetComparison)
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Client-facing error messages. Details go to the log only.
const (
	msgPromptRequired = "Prompt is required"
	msgInvalidBody    = "Invalid request body"
	msgInternal       = "Internal server error"
	msgNotFound       = "Comparison not found"
	msgListFailed     = "Failed to fetch comparisons"
	msgGetFailed      = "Failed to fetch comparison"
	msgCreateFailed   = "Failed to create comparison"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
