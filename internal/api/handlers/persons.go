package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meeting-digest/backend/internal/api/middleware"
	"github.com/meeting-digest/backend/internal/apperror"
	"github.com/meeting-digest/backend/internal/storage/models"
)

// PersonEnricher resolves a person through the enrichment cache.
type PersonEnricher interface {
	Enrich(ctx context.Context, email string) *models.Person
}

// GetPerson enriches an email, refreshing the cache if the row is stale.
// Internal addresses and failed lookups with nothing cached are 404s.
func GetPerson(persons PersonEnricher, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := mux.Vars(r)["email"]

		p := persons.Enrich(r.Context(), email)
		if p == nil {
			middleware.WriteAppError(w, r, logger, apperror.NotFound("person", email))
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
