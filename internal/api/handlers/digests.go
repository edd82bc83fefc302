package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/meeting-digest/backend/internal/api/middleware"
	"github.com/meeting-digest/backend/internal/apperror"
	"github.com/meeting-digest/backend/internal/storage/models"
)

// DigestGenerator produces digests on demand.
type DigestGenerator interface {
	GenerateForUser(ctx context.Context, userID string) (*models.Digest, error)
	GenerateForAll(ctx context.Context) (models.DigestBatchResult, error)
}

// DigestReader loads stored digests.
type DigestReader interface {
	GetByUserAndDate(ctx context.Context, userID, date string) (*models.Digest, error)
}

// GenerateDigest builds today's digest for one user. A user with no
// meetings today gets 204 and no digest is stored.
func GenerateDigest(gen DigestGenerator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := gen.GenerateForUser(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteAppError(w, r, logger, err)
			return
		}
		if d == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	}
}

// GenerateAllDigests runs the batch for every user and returns its summary.
func GenerateAllDigests(gen DigestGenerator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := gen.GenerateForAll(r.Context())
		if err != nil {
			middleware.WriteAppError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// GetDigest returns a stored digest as JSON, or its HTML rendering when the
// client asks for text/html.
func GetDigest(digests DigestReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		userID, date := vars["id"], vars["date"]

		if _, err := time.Parse(models.DigestDateLayout, date); err != nil {
			middleware.WriteAppError(w, r, logger, apperror.ValidationFailed("date", "date must be YYYY-MM-DD"))
			return
		}

		d, err := digests.GetByUserAndDate(r.Context(), userID, date)
		if err == nil && d == nil {
			err = apperror.NotFound("digest", userID+"/"+date)
		}
		if err != nil {
			middleware.WriteAppError(w, r, logger, err)
			return
		}

		if r.Header.Get("Accept") == "text/html" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(d.ContentHTML))
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}
