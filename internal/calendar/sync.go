// Package calendar mirrors users' external calendar feeds into local storage
// and schedules the recurring sync and digest jobs.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meeting-digest/backend/internal/apperror"
	"github.com/meeting-digest/backend/internal/clock"
	"github.com/meeting-digest/backend/internal/feed"
	"github.com/meeting-digest/backend/internal/storage/models"
)

// UserStore is the user access the sync engine needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	UpdateLastSyncAt(ctx context.Context, id string, at time.Time) error
}

// EventStore is the event access the sync engine needs.
type EventStore interface {
	GetByExternalID(ctx context.Context, userID string, externalID int64) (*models.Event, error)
	Save(ctx context.Context, event *models.Event) error
	ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]models.Event, error)
}

// SyncService reconciles the paginated feed against local events.
//
// Pages of one run are fetched and processed strictly in order. The
// checkpoint (User.LastSyncAt) only moves when a run reaches the end of the
// feed or stops early. An absent page ends the run without committing,
// unlike a sync that checkpoints whatever it managed to read, so the unread
// pages are fetched again on the next run.
//
// Items with an unparseable changed, start or end timestamp are skipped and
// counted in SyncResult.Skipped in both modes; full sync upserts every other
// item.
type SyncService struct {
	users   UserStore
	events  EventStore
	fetcher feed.Fetcher
	clock   clock.Clock
	loc     *time.Location
	logger  *slog.Logger
}

// NewSyncService creates a sync engine. loc interprets feed timestamps and
// "today" for users without a time zone of their own.
func NewSyncService(users UserStore, events EventStore, fetcher feed.Fetcher, clk clock.Clock, loc *time.Location, logger *slog.Logger) *SyncService {
	if loc == nil {
		loc = time.UTC
	}
	return &SyncService{
		users:   users,
		events:  events,
		fetcher: fetcher,
		clock:   clk,
		loc:     loc,
		logger:  logger.With("component", "sync"),
	}
}

// SyncEvents runs a full sync: every page is read and every item upserted.
// The checkpoint is the clock reading at completion.
func (s *SyncService) SyncEvents(ctx context.Context, userID string) (*models.SyncResult, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.fullSync(ctx, user)
}

// IncrementalSync reads the feed newest-first and stops at the first item
// whose change time is at or before the user's checkpoint. A user that has
// never synced gets a full sync instead. The new checkpoint is the clock
// reading taken before the first page is requested, so changes made while
// the run is in flight are seen again next time.
func (s *SyncService) IncrementalSync(ctx context.Context, userID string) (*models.SyncResult, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.NeverSynced() {
		s.logger.Info("no checkpoint, running full sync", "user_id", user.ID, "email", user.Email)
		return s.fullSync(ctx, user)
	}

	syncStart := s.clock.Now()
	result, err := s.run(ctx, user, models.SyncModeIncremental, syncStart, *user.LastSyncAt)
	if err != nil {
		return result, err
	}
	if err := s.commit(ctx, user, result, syncStart); err != nil {
		return result, err
	}
	return result, nil
}

// SyncAll runs an incremental sync for every user. One user's failure is
// logged and does not stop the others.
func (s *SyncService) SyncAll(ctx context.Context) ([]models.SyncResult, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	var results []models.SyncResult
	for _, u := range users {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		result, err := s.IncrementalSync(ctx, u.ID)
		if err != nil {
			s.logger.Error("sync failed", "user_id", u.ID, "email", u.Email, "error", err)
			continue
		}
		results = append(results, *result)
	}

	return results, nil
}

// TodayEvents returns the user's events that start today in the user's
// time zone, ordered by start time.
func (s *SyncService) TodayEvents(ctx context.Context, userID string) ([]models.Event, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	from, to := DayBounds(s.clock.Now(), user.Location(s.loc))
	events, err := s.events.ListByUserBetween(ctx, user.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing today's events: %w", err)
	}
	return events, nil
}

// DayBounds returns [midnight, next midnight) of t's calendar day in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 0, 1)
}

// Location returns the time zone used for user's feed and day boundaries.
func (s *SyncService) Location(user *models.User) *time.Location {
	return user.Location(s.loc)
}

func (s *SyncService) fullSync(ctx context.Context, user *models.User) (*models.SyncResult, error) {
	result, err := s.run(ctx, user, models.SyncModeFull, s.clock.Now(), time.Time{})
	if err != nil {
		return result, err
	}
	if err := s.commit(ctx, user, result, s.clock.Now()); err != nil {
		return result, err
	}
	return result, nil
}

// run walks the feed. A zero stopAt disables the early-stop check.
func (s *SyncService) run(ctx context.Context, user *models.User, mode string, startedAt, stopAt time.Time) (*models.SyncResult, error) {
	result := &models.SyncResult{
		UserID:    user.ID,
		UserEmail: user.Email,
		Mode:      mode,
		StartedAt: startedAt,
	}
	loc := user.Location(s.loc)

	for n := 1; ; n++ {
		page := s.fetcher.FetchPage(ctx, user.Email, n)
		if page == nil {
			result.Outcome = models.SyncOutcomeInterrupted
			break
		}
		result.PagesFetched++

		stopped := false
		for _, item := range page.Data {
			changed, err := feed.ParseTimestamp(item.Changed, loc)
			if err != nil {
				s.skip(user, item, n, result, fmt.Errorf("parsing changed: %w", err))
				continue
			}

			if !stopAt.IsZero() && !changed.After(stopAt) {
				stopped = true
				break
			}

			ev, err := toEvent(item, changed, loc)
			if err != nil {
				s.skip(user, item, n, result, err)
				continue
			}

			if err := s.upsert(ctx, user.ID, ev); err != nil {
				return result, fmt.Errorf("upserting event %d: %w", item.ID, err)
			}
			result.Processed++
		}

		if stopped {
			result.Outcome = models.SyncOutcomeStoppedEarly
			break
		}
		if len(page.Data) == 0 || page.IsLast(n) {
			result.Outcome = models.SyncOutcomeDone
			break
		}
	}

	s.logger.Info("sync run finished",
		"user_id", user.ID, "mode", mode, "outcome", result.Outcome,
		"pages", result.PagesFetched, "processed", result.Processed, "skipped", result.Skipped)

	return result, nil
}

// commit moves the checkpoint unless the run was interrupted.
func (s *SyncService) commit(ctx context.Context, user *models.User, result *models.SyncResult, checkpoint time.Time) error {
	if result.Outcome == models.SyncOutcomeInterrupted {
		s.logger.Warn("feed unavailable, checkpoint unchanged", "user_id", user.ID, "email", user.Email)
		return nil
	}
	if err := s.users.UpdateLastSyncAt(ctx, user.ID, checkpoint); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	result.Checkpoint = &checkpoint
	return nil
}

// upsert writes the item over the stored event with the same feed id,
// replacing its attendee list wholesale.
func (s *SyncService) upsert(ctx context.Context, userID string, in *models.Event) error {
	event, err := s.events.GetByExternalID(ctx, userID, in.ExternalID)
	if err != nil {
		return fmt.Errorf("looking up event: %w", err)
	}
	if event == nil {
		event = &models.Event{UserID: userID, ExternalID: in.ExternalID}
	}

	event.Title = in.Title
	event.StartAt = in.StartAt
	event.EndAt = in.EndAt
	event.ChangedAt = in.ChangedAt
	event.SyncedAt = s.clock.Now()
	event.Deleted = false
	event.Attendees = in.Attendees

	return s.events.Save(ctx, event)
}

func (s *SyncService) skip(user *models.User, item feed.Item, page int, result *models.SyncResult, err error) {
	s.logger.Warn("skipping malformed feed item",
		"user_id", user.ID, "external_id", item.ID, "page", page, "error", err)
	result.Skipped++
}

// toEvent converts a feed item whose change time is already parsed.
func toEvent(item feed.Item, changed time.Time, loc *time.Location) (*models.Event, error) {
	start, err := feed.ParseTimestamp(item.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing start: %w", err)
	}
	end, err := feed.ParseTimestamp(item.End, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing end: %w", err)
	}

	attendees := make([]models.Attendee, 0, len(item.Accepted)+len(item.Rejected))
	for _, email := range item.Accepted {
		attendees = append(attendees, models.Attendee{Email: strings.TrimSpace(email), Status: models.AttendeeAccepted})
	}
	for _, email := range item.Rejected {
		attendees = append(attendees, models.Attendee{Email: strings.TrimSpace(email), Status: models.AttendeeRejected})
	}

	return &models.Event{
		ExternalID: item.ID,
		Title:      item.Title,
		StartAt:    &start,
		EndAt:      &end,
		ChangedAt:  &changed,
		Attendees:  attendees,
	}, nil
}

func (s *SyncService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if user == nil {
		return nil, apperror.NotFound("user", userID)
	}
	return user, nil
}
