package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/aristath/portfoliopilot/internal/utils"
)

// Version is reported by the health endpoint.
const Version = "0.3.0"

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status        string    `json:"status" msgpack:"status"`
	Service       string    `json:"service" msgpack:"service"`
	Version       string    `json:"version" msgpack:"version"`
	UptimeSeconds float64   `json:"uptime_seconds" msgpack:"uptime_seconds"`
	Goroutines    int       `json:"goroutines" msgpack:"goroutines"`
	Database      string    `json:"database" msgpack:"database"`
	Solvers       []string  `json:"solvers" msgpack:"solvers"`
	Host          HostStats `json:"host" msgpack:"host"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		Service:       "portfoliopilot",
		Version:       Version,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		Database:      "ok",
		Solvers:       s.solvers.Names(),
		Host:          s.monitor.Latest(),
	}

	status := http.StatusOK
	if s.historyDB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.historyDB.QuickCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("History database health check failed")
			resp.Status = "degraded"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	utils.WriteResponse(w, r, status, resp, s.log)
}
