// Package api provides the HTTP API for running simulations and reading
// stored experiment results.
// GET endpoints read stored results; POST endpoints run simulations on
// request and are rate limited per client.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/segregation/internal/engine"
	"github.com/talgya/segregation/internal/experiment"
	"github.com/talgya/segregation/internal/metrics"
	"github.com/talgya/segregation/internal/persistence"
	"github.com/talgya/segregation/internal/schelling"
	"github.com/talgya/segregation/internal/seed"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

// Server serves simulations and experiment results over HTTP.
type Server struct {
	DB          *persistence.DB  // Nil disables the experiment endpoints.
	Params      schelling.Params // Used when a request carries no params.
	Port        int
	RateLimit   int // Simulation requests per client per minute.
	MaxLineSize int // Longest line accepted by POST endpoints.

	// Upper bounds on request params. Zero means unlimited.
	MaxIterations   int
	MaxNeighborhood int

	// TrustForwardedFor keys rate limiting on X-Forwarded-For. Enable only
	// behind a proxy that sets the header.
	TrustForwardedFor bool
	Logger      *slog.Logger

	started time.Time
	runs    atomic.Int64
	moves   atomic.Int64
}

// simulationRequest is the body of POST /dynamics and POST /metrics. Line
// takes precedence over Initial; with neither, Schelling's original line is
// used.
type simulationRequest struct {
	Line    schelling.Line    `json:"line"`
	Initial *seed.GenConfig   `json:"initial"`
	Params  *schelling.Params `json:"params"`
}

type dynamicsResponse struct {
	Params  schelling.Params `json:"params"`
	Initial schelling.Line   `json:"initial"`
	Result  engine.Result    `json:"result"`
	Before  metrics.Snapshot `json:"before"`
	After   metrics.Snapshot `json:"after"`
}

type metricsResponse struct {
	Params   schelling.Params  `json:"params"`
	Line     schelling.Line    `json:"line"`
	Metrics  metrics.Snapshot  `json:"metrics"`
	Clusters []metrics.Cluster `json:"clusters"`
}

type experimentResponse struct {
	persistence.ExperimentRecord
	Plan   experiment.Plan    `json:"plan"`
	Points []experiment.Point `json:"points"`
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	rate := s.RateLimit
	if rate < 1 {
		rate = 60
	}
	limiter := NewRateLimiter(rate, time.Minute)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/experiments", s.handleExperiments)
	mux.HandleFunc("GET /api/v1/experiment/{id}", s.handleExperimentDetail)

	mux.HandleFunc("POST /api/v1/dynamics", RateLimitMiddleware(limiter, s.TrustForwardedFor, s.handleDynamics))
	mux.HandleFunc("POST /api/v1/metrics", RateLimitMiddleware(limiter, s.TrustForwardedFor, s.handleMetrics))

	return corsMiddleware(mux)
}

// ListenAndServe serves the API until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger().Info("HTTP API starting", "addr", srv.Addr, "storage", s.DB != nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	s.logger().Info("HTTP API stopped")
	return nil
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
		"http://localhost:8888": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	runs := s.runs.Load()
	moves := s.moves.Load()
	status := map[string]any{
		"name":             "schelling",
		"started":          s.started.UTC().Format(time.RFC3339),
		"uptime":           strings.TrimSuffix(humanize.Time(s.started), " ago"),
		"runs":             runs,
		"runs_human":       humanize.Comma(runs),
		"moves":            moves,
		"moves_human":      humanize.Comma(moves),
		"params":           s.Params,
		"max_line_size":    s.MaxLineSize,
		"max_iterations":   s.MaxIterations,
		"max_neighborhood": s.MaxNeighborhood,
		"storage":          s.DB != nil,
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDynamics(w http.ResponseWriter, r *http.Request) {
	p, line, ok := s.decodeSimulation(w, r)
	if !ok {
		return
	}

	res, err := engine.NewDriver(p).Run(r.Context(), line)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.runs.Add(1)
	s.moves.Add(int64(res.Moves))

	s.logger().Debug("dynamics served",
		"size", len(line),
		"neighborhood", p.Neighborhood,
		"outcome", res.Outcome.String(),
		"sweeps", res.Sweeps,
	)
	writeJSON(w, http.StatusOK, dynamicsResponse{
		Params:  p,
		Initial: line,
		Result:  res,
		Before:  metrics.Measure(p, line),
		After:   metrics.Measure(p, res.Line),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	p, line, ok := s.decodeSimulation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, metricsResponse{
		Params:   p,
		Line:     line,
		Metrics:  metrics.Measure(p, line),
		Clusters: metrics.Clusters(line),
	})
}

// decodeSimulation reads and validates a simulationRequest. On failure it has
// already written the response.
func (s *Server) decodeSimulation(w http.ResponseWriter, r *http.Request) (schelling.Params, schelling.Line, bool) {
	// Params present in the body overlay the server defaults field by field.
	p := s.Params
	req := simulationRequest{Params: &p}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return schelling.Params{}, nil, false
	}
	if req.Params == nil {
		p = s.Params
	}

	if err := s.checkParams(p); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return p, nil, false
	}

	line := req.Line
	if len(line) == 0 {
		cfg := seed.GenConfig{Kind: seed.KindOriginal}
		if req.Initial != nil {
			cfg = *req.Initial
		}
		if s.MaxLineSize > 0 && cfg.Kind != seed.KindOriginal && cfg.Size > s.MaxLineSize {
			http.Error(w, fmt.Sprintf("line size must not exceed %d", s.MaxLineSize), http.StatusRequestEntityTooLarge)
			return p, nil, false
		}
		var err error
		if line, err = seed.Generate(cfg); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return p, nil, false
		}
	}
	if s.MaxLineSize > 0 && len(line) > s.MaxLineSize {
		http.Error(w, fmt.Sprintf("line size must not exceed %d", s.MaxLineSize), http.StatusRequestEntityTooLarge)
		return p, nil, false
	}

	if err := p.ValidateLine(line); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return p, nil, false
	}
	return p, line, true
}

// checkParams validates p and holds it to the server's limits.
func (s *Server) checkParams(p schelling.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if s.MaxIterations > 0 && p.MaxIterations > s.MaxIterations {
		return fmt.Errorf("%w: max_iterations must not exceed %d, got %d",
			schelling.ErrInvalidConfiguration, s.MaxIterations, p.MaxIterations)
	}
	if s.MaxNeighborhood > 0 && p.Neighborhood > s.MaxNeighborhood {
		return fmt.Errorf("%w: neighborhood must not exceed %d, got %d",
			schelling.ErrInvalidConfiguration, s.MaxNeighborhood, p.Neighborhood)
	}
	return nil
}

func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "experiment storage not configured", http.StatusServiceUnavailable)
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}

	recs, err := s.DB.Experiments(limit)
	if err != nil {
		s.logger().Error("list experiments", "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []persistence.ExperimentRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleExperimentDetail(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "experiment storage not configured", http.StatusServiceUnavailable)
		return
	}

	id := r.PathValue("id")
	if id == "last" {
		last, err := s.DB.LastExperimentID()
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		id = last
	}

	rec, err := s.DB.Experiment(id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	plan, err := rec.Plan()
	if err != nil {
		s.logger().Error("decode experiment plan", "id", id, "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	points, err := s.DB.Points(id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, experimentResponse{ExperimentRecord: rec, Plan: plan, Points: points})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, schelling.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, persistence.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
