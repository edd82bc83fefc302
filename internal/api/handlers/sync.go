package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meeting-digest/backend/internal/api/middleware"
	"github.com/meeting-digest/backend/internal/storage/models"
)

// UserSyncer runs an on-demand sync and notifies listeners.
type UserSyncer interface {
	SyncUser(ctx context.Context, userID string, full bool) (*models.SyncResult, error)
}

// TodayReader returns a user's events starting today.
type TodayReader interface {
	TodayEvents(ctx context.Context, userID string) ([]models.Event, error)
}

// SyncUser syncs one user now. ?mode=full forces a full sync; anything else
// is incremental.
func SyncUser(syncer UserSyncer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		mode := r.URL.Query().Get("mode")
		if mode != "" && mode != models.SyncModeFull && mode != models.SyncModeIncremental {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "mode must be full or incremental")
			return
		}

		result, err := syncer.SyncUser(r.Context(), id, mode == models.SyncModeFull)
		if err != nil {
			middleware.WriteAppError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// TodayEvents lists the user's events for today in the user's time zone.
func TodayEvents(reader TodayReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := reader.TodayEvents(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteAppError(w, r, logger, err)
			return
		}
		if events == nil {
			events = []models.Event{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}
