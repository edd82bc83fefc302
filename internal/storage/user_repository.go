package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meeting-digest/backend/internal/apperror"
	"github.com/meeting-digest/backend/internal/storage/models"
)

// UserRepository provides data access for calendar owners.
type UserRepository struct {
	BaseRepository
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const userColumns = `id, email, calendar_token, timezone, last_sync_at, created_at`

// Create inserts a new user. The email is stored lowercased and must be unique.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.ID = GenerateID()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = r.Now()

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO users (id, email, calendar_token, timezone, last_sync_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		user.ID, user.Email, user.CalendarToken, user.Timezone,
		utc(user.LastSyncAt), user.CreatedAt,
	)
	if isUniqueViolation(err) {
		return apperror.Conflict("user", user.Email)
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID. Returns nil, nil when no such user exists.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "email = ?", strings.TrimSpace(email))
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (*models.User, error) {
	row := r.DB().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	return user, nil
}

// List retrieves all users ordered by email.
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.DB().QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *user)
	}

	return users, rows.Err()
}

// UpdateLastSyncAt moves the user's sync checkpoint.
func (r *UserRepository) UpdateLastSyncAt(ctx context.Context, id string, at time.Time) error {
	result, err := r.DB().ExecContext(ctx,
		`UPDATE users SET last_sync_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("updating last sync: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

// CalendarToken returns the feed credential stored for email, or "" when the
// user is unknown or has none.
func (r *UserRepository) CalendarToken(ctx context.Context, email string) (string, error) {
	var token sql.NullString
	err := r.DB().QueryRowContext(ctx,
		`SELECT calendar_token FROM users WHERE email = ?`, strings.TrimSpace(email),
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying calendar token: %w", err)
	}

	return token.String, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID, &user.Email, &user.CalendarToken, &user.Timezone,
		&user.LastSyncAt, &user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
