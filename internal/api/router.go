// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meeting-digest/backend/internal/api/handlers"
	"github.com/meeting-digest/backend/internal/api/middleware"
	"github.com/meeting-digest/backend/internal/websocket"
)

// Services are the dependencies the routes are served from. Schedule and
// Hub may be nil; without a hub /api/ws is not registered.
type Services struct {
	DB       handlers.Pinger
	Users    handlers.UserStore
	Syncer   handlers.UserSyncer
	Today    handlers.TodayReader
	Digests  handlers.DigestGenerator
	Stored   handlers.DigestReader
	Persons  handlers.PersonEnricher
	Schedule handlers.Schedule
	Hub      *websocket.Hub
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(svc Services, logger *slog.Logger) *mux.Router {
	logger = logger.With("component", "api")

	r := mux.NewRouter()
	r.Use(middleware.Logging(logger))
	r.Use(middleware.ErrorRecovery(logger))

	api := r.PathPrefix("/api").Subrouter()

	var clients handlers.ClientCounter
	if svc.Hub != nil {
		clients = svc.Hub
		api.HandleFunc("/ws", handlers.WebSocketUpgrade(svc.Hub, logger)).Methods(http.MethodGet)
	}
	api.HandleFunc("/health", handlers.HealthCheck(svc.DB, svc.Users, svc.Schedule, clients)).Methods(http.MethodGet)

	// Users
	api.Handle("/users", byMethod{
		http.MethodGet:  handlers.ListUsers(svc.Users, logger),
		http.MethodPost: handlers.CreateUser(svc.Users, logger),
	}).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/users/{id}", handlers.GetUser(svc.Users, logger)).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/sync", handlers.SyncUser(svc.Syncer, logger)).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/events/today", handlers.TodayEvents(svc.Today, logger)).Methods(http.MethodGet)

	// Digests
	api.HandleFunc("/users/{id}/digest", handlers.GenerateDigest(svc.Digests, logger)).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/digests/{date}", handlers.GetDigest(svc.Stored, logger)).Methods(http.MethodGet)
	api.HandleFunc("/digests", handlers.GenerateAllDigests(svc.Digests, logger)).Methods(http.MethodPost)

	// Enrichment
	api.HandleFunc("/persons/{email}", handlers.GetPerson(svc.Persons, logger)).Methods(http.MethodGet)

	return r
}

// byMethod dispatches one mux route to a handler per HTTP method. A path
// served by several methods must be a single route, or a later route with a
// different path turns mux's 405 into a 404.
type byMethod map[string]http.Handler

func (m byMethod) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m[r.Method].ServeHTTP(w, r)
}
