// Package api exposes the daemon's operational HTTP surface: health,
// status and Prometheus metrics. It carries no moderation decisions; the
// moderation pipeline stays CLI- and scheduler-driven.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openlistings/moderation/internal/db"
	"github.com/openlistings/moderation/internal/scanner"
)

// Server groups dependencies for the ops HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Scheduler *scanner.Scheduler
	PG        *db.Postgres
}

// NewServer constructs an ops Server.
func NewServer(logger *zap.Logger, sched *scanner.Scheduler, pg *db.Postgres) *Server {
	return &Server{Logger: logger, Scheduler: sched, PG: pg}
}

// Router builds the ops mux.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/status", s.StatusHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// HealthHandler responds with a simple status check.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// statusResponse is the /status payload.
type statusResponse struct {
	State           string                 `json:"state"`
	ExternalHealthy bool                   `json:"external_service_healthy"`
	RecentScans     []db.ScanHistoryEntry  `json:"recent_scans,omitempty"`
}

// StatusHandler reports the daemon state, external service reachability and
// recent scan history.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := statusResponse{
		State:           s.Scheduler.CurrentState().String(),
		ExternalHealthy: s.Scheduler.ServiceHealth(ctx),
	}
	if s.PG != nil {
		entries, err := s.PG.RecentScanHistory(ctx, 5)
		if err != nil {
			s.Logger.Warn("load recent scan history", zap.Error(err))
		} else {
			resp.RecentScans = entries
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.Logger.Warn("encode status response", zap.Error(err))
	}
}
