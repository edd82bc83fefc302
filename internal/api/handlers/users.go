package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/meeting-digest/backend/internal/api/middleware"
	"github.com/meeting-digest/backend/internal/apperror"
	"github.com/meeting-digest/backend/internal/storage/models"
)

var validate = validator.New()

// UserStore is the user persistence the API needs.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

// CreateUserRequest registers a calendar owner.
type CreateUserRequest struct {
	Email         string `json:"email" validate:"required,email"`
	CalendarToken string `json:"calendar_token"`
	Timezone      string `json:"timezone" validate:"omitempty,timezone"`
}

// ListUsers returns all users ordered by email.
func ListUsers(users UserStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := users.List(r.Context())
		if err != nil {
			middleware.WriteAppError(w, r, logger, err)
			return
		}
		if list == nil {
			list = []models.User{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GetUser returns a single user by ID.
func GetUser(users UserStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		user, err := users.GetByID(r.Context(), id)
		if err == nil && user == nil {
			err = apperror.NotFound("user", id)
		}
		if err != nil {
			middleware.WriteAppError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// CreateUser registers a new user. A duplicate email is a 409.
func CreateUser(users UserStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		req.Email = strings.TrimSpace(req.Email)

		if err := validate.Struct(req); err != nil {
			middleware.WriteAppError(w, r, logger, validationError(err))
			return
		}

		user := &models.User{Email: req.Email, Timezone: req.Timezone}
		if req.CalendarToken != "" {
			user.CalendarToken = &req.CalendarToken
		}
		if err := users.Create(r.Context(), user); err != nil {
			middleware.WriteAppError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, user)
	}
}

// validationError reports the first failing field.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			return apperror.ValidationFailed(field, field+" is required")
		default:
			return apperror.ValidationFailed(field, "invalid "+field)
		}
	}
	return apperror.ValidationFailed("", err.Error())
}
