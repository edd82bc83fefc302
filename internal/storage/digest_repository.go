package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/meeting-digest/backend/internal/apperror"
	"github.com/meeting-digest/backend/internal/storage/models"
)

// DigestRepository stores rendered daily digests, one per user and date.
type DigestRepository struct {
	BaseRepository
}

// NewDigestRepository creates a new digest repository.
func NewDigestRepository(db *DB) *DigestRepository {
	return &DigestRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Save stores the digest, replacing the content of an existing digest for
// the same user and date. d.ID is set to the stored row's ID.
func (r *DigestRepository) Save(ctx context.Context, d *models.Digest) error {
	d.CreatedAt = r.Now()

	err := r.DB().QueryRowContext(ctx, `
		INSERT INTO digests (id, user_id, digest_date, content_json, content_html, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, digest_date) DO UPDATE SET
			content_json = excluded.content_json,
			content_html = excluded.content_html,
			created_at = excluded.created_at
		RETURNING id
	`, GenerateID(), d.UserID, d.DigestDate, d.ContentJSON, d.ContentHTML, d.CreatedAt).Scan(&d.ID)
	if isForeignKeyViolation(err) {
		return apperror.NotFound("user", d.UserID)
	}
	if err != nil {
		return fmt.Errorf("saving digest: %w", err)
	}

	return nil
}

// GetByUserAndDate returns the digest for date (YYYY-MM-DD), or nil, nil.
func (r *DigestRepository) GetByUserAndDate(ctx context.Context, userID, date string) (*models.Digest, error) {
	var d models.Digest
	err := r.DB().QueryRowContext(ctx, `
		SELECT id, user_id, digest_date, content_json, content_html, created_at
		FROM digests WHERE user_id = ? AND digest_date = ?
	`, userID, date).Scan(&d.ID, &d.UserID, &d.DigestDate, &d.ContentJSON, &d.ContentHTML, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying digest: %w", err)
	}

	return &d, nil
}
