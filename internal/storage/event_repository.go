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

// EventRepository provides data access for mirrored calendar events and
// their attendees.
type EventRepository struct {
	BaseRepository
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const eventColumns = `id, user_id, external_id, title, start_at, end_at, changed_at, synced_at, deleted`

// GetByExternalID retrieves a user's event by its feed identity, with
// attendees. Returns nil, nil when the event has never been synced.
func (r *EventRepository) GetByExternalID(ctx context.Context, userID string, externalID int64) (*models.Event, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events WHERE user_id = ? AND external_id = ?
	`, userID, externalID)

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}

	attendees, err := r.attendees(ctx, r.DB(), event.ID)
	if err != nil {
		return nil, err
	}
	event.Attendees = attendees

	return event, nil
}

// Save writes the event and replaces its attendee list in one transaction.
// The row is keyed by (UserID, ExternalID): a second writer for the same
// feed item updates the existing row and event.ID is set to its ID. Inserting
// for a user that no longer exists fails with apperror.ErrNotFound.
func (r *EventRepository) Save(ctx context.Context, event *models.Event) error {
	id := event.ID
	if id == "" {
		id = GenerateID()
	}

	err := r.DB().Transaction(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO events (`+eventColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, external_id) DO UPDATE SET
				title = excluded.title,
				start_at = excluded.start_at,
				end_at = excluded.end_at,
				changed_at = excluded.changed_at,
				synced_at = excluded.synced_at,
				deleted = excluded.deleted
			RETURNING id
		`,
			id, event.UserID, event.ExternalID, event.Title,
			utc(event.StartAt), utc(event.EndAt), utc(event.ChangedAt),
			event.SyncedAt.UTC(), event.Deleted,
		).Scan(&id)
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", event.UserID)
		}
		if err != nil {
			return fmt.Errorf("upserting event: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM event_attendees WHERE event_id = ?`, id); err != nil {
			return fmt.Errorf("clearing attendees: %w", err)
		}

		for i, a := range event.Attendees {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO event_attendees (event_id, position, email, status)
				VALUES (?, ?, ?, ?)
			`, id, i, a.Email, a.Status); err != nil {
				return fmt.Errorf("inserting attendee: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	event.ID = id
	return nil
}

// ListByUserBetween returns the user's non-deleted events starting in
// [from, to), ordered by start time, with attendees loaded.
func (r *EventRepository) ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]models.Event, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE user_id = ? AND deleted = 0 AND start_at >= ? AND start_at < ?
		ORDER BY start_at, external_id
	`, userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	index := make(map[string]int)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		index[event.ID] = len(events)
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	arows, err := r.DB().QueryContext(ctx, `
		SELECT a.event_id, a.email, a.status
		FROM event_attendees a
		JOIN events e ON e.id = a.event_id
		WHERE e.user_id = ? AND e.deleted = 0 AND e.start_at >= ? AND e.start_at < ?
		ORDER BY a.event_id, a.position
	`, userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying attendees: %w", err)
	}
	defer arows.Close()

	for arows.Next() {
		var eventID string
		var a models.Attendee
		if err := arows.Scan(&eventID, &a.Email, &a.Status); err != nil {
			return nil, fmt.Errorf("scanning attendee: %w", err)
		}
		if i, ok := index[eventID]; ok {
			events[i].Attendees = append(events[i].Attendees, a)
		}
	}

	return events, arows.Err()
}

// CountSharedMeetings counts the user's non-deleted events that email attended.
func (r *EventRepository) CountSharedMeetings(ctx context.Context, userID, email string) (int, error) {
	var n int
	err := r.DB().QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT e.id)
		FROM events e
		JOIN event_attendees a ON a.event_id = e.id
		WHERE e.user_id = ? AND e.deleted = 0 AND a.email = ? COLLATE NOCASE
	`, userID, strings.TrimSpace(email)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting shared meetings: %w", err)
	}
	return n, nil
}

// ColleagueMeetingCount is how often one colleague met a contact.
type ColleagueMeetingCount struct {
	Email string `json:"email"`
	Count int    `json:"count"`
}

// ColleagueMeetingCounts returns, for every attendee in domain other than
// exclude, the number of distinct feed events (across all users) they shared
// with contact. Ordered by count descending, then email.
func (r *EventRepository) ColleagueMeetingCounts(ctx context.Context, contact, domain, exclude string) ([]ColleagueMeetingCount, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT lower(c.email) AS colleague, COUNT(DISTINCT e.external_id) AS meetings
		FROM events e
		JOIN event_attendees x ON x.event_id = e.id AND x.email = ? COLLATE NOCASE
		JOIN event_attendees c ON c.event_id = e.id
		WHERE e.deleted = 0
		  AND lower(c.email) LIKE ? ESCAPE '\'
		  AND lower(c.email) <> lower(?)
		  AND lower(c.email) <> lower(?)
		GROUP BY colleague
		ORDER BY meetings DESC, colleague
	`, strings.TrimSpace(contact), "%@"+escapeLike(strings.ToLower(domain)), strings.TrimSpace(exclude), strings.TrimSpace(contact))
	if err != nil {
		return nil, fmt.Errorf("querying colleague meetings: %w", err)
	}
	defer rows.Close()

	var counts []ColleagueMeetingCount
	for rows.Next() {
		var c ColleagueMeetingCount
		if err := rows.Scan(&c.Email, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning colleague meetings: %w", err)
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}

func (r *EventRepository) attendees(ctx context.Context, q Queryable, eventID string) ([]models.Attendee, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT email, status FROM event_attendees WHERE event_id = ? ORDER BY position
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying attendees: %w", err)
	}
	defer rows.Close()

	var attendees []models.Attendee
	for rows.Next() {
		var a models.Attendee
		if err := rows.Scan(&a.Email, &a.Status); err != nil {
			return nil, fmt.Errorf("scanning attendee: %w", err)
		}
		attendees = append(attendees, a)
	}

	return attendees, rows.Err()
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var event models.Event
	if err := row.Scan(
		&event.ID, &event.UserID, &event.ExternalID, &event.Title,
		&event.StartAt, &event.EndAt, &event.ChangedAt, &event.SyncedAt, &event.Deleted,
	); err != nil {
		return nil, err
	}
	return &event, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
