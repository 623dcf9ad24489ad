package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/couchcryptid/msi-broadcast-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runner executes one pipeline pass on demand.
type Runner interface {
	sharedobs.ReadinessChecker
	Run(ctx context.Context) (pipeline.RunResult, error)
}

// RunSummary is the JSON body returned by POST /run.
type RunSummary struct {
	RunID         string            `json:"run_id"`
	Records       int               `json:"records"`
	Malformed     int               `json:"malformed"`
	Notification  bool              `json:"notification"`
	FailedSources []string          `json:"failed_sources,omitempty"`
	SourceErrors  map[string]string `json:"source_errors,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// Server exposes health, readiness, metrics, and manual-run HTTP endpoints.
type Server struct {
	httpServer *http.Server
	runner     Runner
	runTimeout time.Duration
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// POST /run routes. A run triggered over HTTP is bounded by runTimeout.
func NewServer(addr string, runner Runner, runTimeout time.Duration, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: runTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		runner:     runner,
		runTimeout: runTimeout,
		logger:     logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(runner))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /run", s.handleRun)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()

	result, err := s.runner.Run(ctx)
	summary := summarize(result)

	status := http.StatusOK
	if err != nil {
		summary.Error = err.Error()
		status = http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrAllSourcesUnavailable) {
			status = http.StatusBadGateway
		}
		s.logger.Warn("manual run finished with errors", "run_id", result.RunID, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		s.logger.Error("encode run summary", "error", err)
	}
}

func summarize(result pipeline.RunResult) RunSummary {
	summary := RunSummary{
		RunID:        result.RunID,
		Records:      len(result.Records),
		Malformed:    len(result.Malformed),
		Notification: !result.Notification.IsEmpty(),
	}
	if len(result.SourceErrors) > 0 {
		summary.SourceErrors = make(map[string]string, len(result.SourceErrors))
		for src, err := range result.SourceErrors {
			summary.FailedSources = append(summary.FailedSources, src)
			summary.SourceErrors[src] = err.Error()
		}
		sort.Strings(summary.FailedSources)
	}
	return summary
}
