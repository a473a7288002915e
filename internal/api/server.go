// Package api exposes the operational HTTP surface used in stream mode:
// health probes, Prometheus metrics and a JSON view of the current report.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"PayEngine/internal/observability"
	"PayEngine/internal/report"
)

// Server wires the router and owns the http.Server lifecycle.
type Server struct {
	httpServer *http.Server
	reports    *report.Generator
	health     *observability.HealthChecker
	log        zerolog.Logger
}

func NewServer(addr string, reports *report.Generator, health *observability.HealthChecker, log zerolog.Logger) *Server {
	s := &Server{
		reports: reports,
		health:  health,
		log:     log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", health.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", health.ReadinessHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/accounts", s.handleAccounts).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// accountRow is the JSON projection of one rounded account snapshot.
type accountRow struct {
	Client    uint16 `json:"client"`
	Available string `json:"available"`
	Held      string `json:"held"`
	Total     string `json:"total"`
	Locked    bool   `json:"locked"`
}

// handleAccounts renders the rounded report for the store as it is right
// now. In stream mode this is a live observation, not the final report.
func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	seq, err := s.reports.Accounts(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("report generation failed")
		http.Error(w, "report generation failed", http.StatusInternalServerError)
		return
	}

	rows := make([]accountRow, 0)
	for acct := range seq {
		rows = append(rows, accountRow{
			Client:    acct.Client,
			Available: acct.Available.String(),
			Held:      acct.Held.String(),
			Total:     acct.Total.String(),
			Locked:    acct.Locked,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		s.log.Error().Err(err).Msg("encode accounts response")
	}
}

// Start serves until Shutdown. It returns http.ErrServerClosed on a clean
// stop, which callers should treat as success.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
