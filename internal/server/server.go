package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/collectionpulse/engine/internal/config"
	"github.com/collectionpulse/engine/internal/engine"
	"github.com/collectionpulse/engine/internal/ingest"
	"github.com/collectionpulse/engine/internal/model"
	"github.com/collectionpulse/engine/internal/store"
)

// Pipeline is the engine surface the admin endpoints drive.
type Pipeline interface {
	ProcessIntake(ctx context.Context, payloads []ingest.IntakePayload) (engine.IntakeSummary, error)
	RefreshAll(ctx context.Context) (engine.CycleStats, error)
}

// Cleaner runs one retention sweep on demand.
type Cleaner interface {
	Sweep(ctx context.Context, retention time.Duration, batchSize int) (map[string]int, error)
}

// Server is the engine's HTTP API.
type Server struct {
	cfg       config.ServerConfig
	store     store.Store
	pipeline  Pipeline
	cleaner   Cleaner
	retention time.Duration
	batchSize int
	logger    *slog.Logger

	httpServer *http.Server
}

// New creates a Server. retention and batchSize parameterize the admin
// sweep endpoint.
func New(cfg config.ServerConfig, st store.Store, p Pipeline, c Cleaner, retention time.Duration, batchSize int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		store:     st,
		pipeline:  p,
		cleaner:   c,
		retention: retention,
		batchSize: batchSize,
		logger:    logger,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/alerts", s.handleAlerts)
	mux.HandleFunc("/api/alerts/resolve", s.handleResolveAlert)
	mux.HandleFunc("/admin/intake", s.requireAdmin(s.handleIntake))
	mux.HandleFunc("/admin/refresh", s.requireAdmin(s.handleRefresh))
	mux.HandleFunc("/admin/sweep", s.requireAdmin(s.handleSweep))

	return mux
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.logger.Info("http server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status string            `json:"status"`
		Store  string            `json:"store"`
		Counts store.TableCounts `json:"counts"`
	}{Status: "healthy", Store: "connected"}

	if err := s.store.Ping(ctx); err != nil {
		health.Status = "unhealthy"
		health.Store = err.Error()
	} else if counts, err := s.store.Counts(ctx); err == nil {
		health.Counts = counts
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// handleMetrics serves a collection's computed rows, optionally narrowed to
// one window via ?window=24h.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET required", http.StatusMethodNotAllowed)
		return
	}

	collectionID := r.URL.Query().Get("collection")
	if collectionID == "" {
		http.Error(w, "collection parameter required", http.StatusBadRequest)
		return
	}

	if win := r.URL.Query().Get("window"); win != "" {
		window := model.MetricWindow(win)
		if !window.Valid() {
			http.Error(w, fmt.Sprintf("unknown window %q", win), http.StatusBadRequest)
			return
		}

		m, err := s.store.Metric(r.Context(), collectionID, window)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "metric not found", http.StatusNotFound)
			return
		}
		if err != nil {
			s.internalError(w, "load metric", err)
			return
		}
		s.writeJSON(w, m)
		return
	}

	rows, err := s.store.MetricsFor(r.Context(), collectionID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "collection not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, "load metrics", err)
		return
	}
	s.writeJSON(w, map[string]any{
		"collection_id": collectionID,
		"metrics":       rows,
	})
}

// handleAlerts lists alerts with optional collection/type/severity/resolved
// filters, limit/offset pagination and triggered_at sorting.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET required", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	f := store.AlertFilter{
		CollectionID: q.Get("collection"),
		Type:         model.AlertType(q.Get("type")),
		Severity:     model.Severity(q.Get("severity")),
		SortAsc:      q.Get("sort") == "asc",
	}

	if v := q.Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid resolved parameter", http.StatusBadRequest)
			return
		}
		f.Resolved = &resolved
	}

	var err error
	if f.Limit, err = intParam(q.Get("limit"), 50); err != nil {
		http.Error(w, "invalid limit parameter", http.StatusBadRequest)
		return
	}
	if f.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		http.Error(w, "invalid offset parameter", http.StatusBadRequest)
		return
	}

	alerts, total, err := s.store.Alerts(r.Context(), f)
	if err != nil {
		s.internalError(w, "list alerts", err)
		return
	}

	s.writeJSON(w, map[string]any{
		"alerts": alerts,
		"total":  total,
		"limit":  f.Limit,
		"offset": f.Offset,
	})
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id parameter required", http.StatusBadRequest)
		return
	}

	a, err := s.store.ResolveAlert(r.Context(), id, time.Now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, "resolve alert", err)
		return
	}
	s.writeJSON(w, a)
}

func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var payloads []ingest.IntakePayload
	if err := json.NewDecoder(r.Body).Decode(&payloads); err != nil {
		http.Error(w, "invalid intake body: "+err.Error(), http.StatusBadRequest)
		return
	}

	sum, err := s.pipeline.ProcessIntake(r.Context(), payloads)
	if err != nil {
		s.internalError(w, "process intake", err)
		return
	}
	s.writeJSON(w, sum)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	stats, err := s.pipeline.RefreshAll(r.Context())
	if err != nil {
		s.internalError(w, "refresh", err)
		return
	}
	s.writeJSON(w, stats)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	deleted, err := s.cleaner.Sweep(r.Context(), s.retention, s.batchSize)
	if err != nil {
		s.internalError(w, "sweep", err)
		return
	}
	s.writeJSON(w, map[string]any{"deleted": deleted})
}

// requireAdmin gates a handler behind the configured bearer token. With no
// token configured the admin surface is disabled outright.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			http.Error(w, "admin endpoints disabled", http.StatusForbidden)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.cfg.AdminToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}
