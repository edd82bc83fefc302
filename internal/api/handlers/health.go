// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger reports database reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Schedule exposes the scheduler's upcoming runs.
type Schedule interface {
	NextDigestRun() *time.Time
	NextSyncRun() *time.Time
}

// ClientCounter reports connected WebSocket clients.
type ClientCounter interface {
	ClientCount() int
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string     `json:"status"`
	DBConnected bool       `json:"db_connected"`
	Users       int        `json:"users"`
	WSClients   int        `json:"ws_clients"`
	NextDigest  *time.Time `json:"next_digest_at,omitempty"`
	NextSync    *time.Time `json:"next_sync_at,omitempty"`
}

// HealthCheck returns a handler that reports database reachability and the
// scheduler's next runs. schedule and clients may be nil.
func HealthCheck(db Pinger, users UserStore, schedule Schedule, clients ClientCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		response := HealthResponse{
			Status:      "healthy",
			DBConnected: db.PingContext(ctx) == nil,
		}
		if !response.DBConnected {
			response.Status = "degraded"
		} else if list, err := users.List(ctx); err == nil {
			response.Users = len(list)
		}
		if schedule != nil {
			response.NextDigest = schedule.NextDigestRun()
			response.NextSync = schedule.NextSyncRun()
		}
		if clients != nil {
			response.WSClients = clients.ClientCount()
		}

		status := http.StatusOK
		if response.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
