// Package digest assembles each user's daily meeting digest: it syncs the
// calendar, enriches external attendees and hands the day to the report
// builder.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/meeting-digest/backend/internal/apperror"
	"github.com/meeting-digest/backend/internal/clock"
	"github.com/meeting-digest/backend/internal/person"
	"github.com/meeting-digest/backend/internal/storage/models"
)

// UserReader loads users.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

// Syncer brings a user's local events up to date and reads today's.
type Syncer interface {
	IncrementalSync(ctx context.Context, userID string) (*models.SyncResult, error)
	TodayEvents(ctx context.Context, userID string) ([]models.Event, error)
	Location(user *models.User) *time.Location
}

// Enricher resolves a person, refreshing the cache when needed.
type Enricher interface {
	Enrich(ctx context.Context, email string) *models.Person
}

// ReportBuilder renders and stores a digest.
type ReportBuilder interface {
	Generate(ctx context.Context, user *models.User, date string, loc *time.Location, events []models.Event) (*models.Digest, error)
}

// Notifier is told about generated digests. Optional.
type Notifier interface {
	DigestGenerated(d models.Digest, meetings int)
	BatchCompleted(result models.DigestBatchResult)
}

// Service orchestrates digest generation.
type Service struct {
	users    UserReader
	sync     Syncer
	enricher Enricher
	reports  ReportBuilder
	notifier Notifier
	clock    clock.Clock
	domain   string
	workers  int
	logger   *slog.Logger
}

// Config holds the Service knobs.
type Config struct {
	InternalDomain string
	Workers        int
}

// NewService creates a digest orchestrator. notifier may be nil.
func NewService(users UserReader, syncer Syncer, enricher Enricher, reports ReportBuilder, notifier Notifier, clk clock.Clock, cfg Config, logger *slog.Logger) *Service {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Service{
		users:    users,
		sync:     syncer,
		enricher: enricher,
		reports:  reports,
		notifier: notifier,
		clock:    clk,
		domain:   cfg.InternalDomain,
		workers:  workers,
		logger:   logger.With("component", "digest"),
	}
}

// GenerateForUser syncs the user's calendar, enriches today's external
// attendees and stores the digest. A nil digest with a nil error means the
// user has no events today. A missing user is reported as
// apperror.ErrNotFound.
func (s *Service) GenerateForUser(ctx context.Context, userID string) (*models.Digest, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if user == nil {
		return nil, apperror.NotFound("user", userID)
	}
	logger := s.logger.With("user_id", user.ID, "email", user.Email)

	if _, err := s.sync.IncrementalSync(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("syncing calendar: %w", err)
	}

	events, err := s.sync.TodayEvents(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		logger.Info("no events today, skipping digest")
		return nil, nil
	}

	enriched := s.enrichAttendees(ctx, user, events, logger)

	loc := s.sync.Location(user)
	date := s.clock.Now().In(loc).Format(models.DigestDateLayout)

	d, err := s.reports.Generate(ctx, user, date, loc, events)
	if err != nil {
		return nil, fmt.Errorf("building digest: %w", err)
	}

	logger.Info("digest generated", "digest_id", d.ID, "date", date, "meetings", len(events), "enriched", enriched)
	if s.notifier != nil {
		s.notifier.DigestGenerated(*d, len(events))
	}
	return d, nil
}

// enrichAttendees warms the person cache for every external attendee that
// has not declined. Each email is tried at most once per run. Returns how
// many lookups produced a person.
func (s *Service) enrichAttendees(ctx context.Context, user *models.User, events []models.Event, logger *slog.Logger) int {
	seen := make(map[string]bool)
	enriched := 0

	for _, event := range events {
		for _, a := range event.Attendees {
			email := strings.ToLower(strings.TrimSpace(a.Email))
			switch {
			case email == "" || user.IsSelf(email):
				continue
			case person.IsInternal(email, s.domain):
				continue
			case a.IsDeclined():
				continue
			case seen[email]:
				continue
			}
			seen[email] = true

			if s.enrich(ctx, email, logger) {
				enriched++
			}
		}
	}

	return enriched
}

// enrich never lets a failing lookup escape; the builder falls back to
// whatever is cached.
func (s *Service) enrich(ctx context.Context, email string, logger *slog.Logger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("enrichment panicked", "attendee", email, "panic", r)
			ok = false
		}
	}()
	return s.enricher.Enrich(ctx, email) != nil
}

// GenerateForAll generates digests for every user using a bounded pool of
// workers. One user's failure never stops the others.
func (s *Service) GenerateForAll(ctx context.Context) (models.DigestBatchResult, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return models.DigestBatchResult{}, fmt.Errorf("listing users: %w", err)
	}

	result := models.DigestBatchResult{Users: len(users)}
	var mu sync.Mutex

	jobs := make(chan models.User)
	var wg sync.WaitGroup
	for i := 0; i < min(s.workers, len(users)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				d, err := s.generateSafely(ctx, u.ID)

				mu.Lock()
				switch {
				case err != nil:
					result.Failed++
					if result.Errors == nil {
						result.Errors = make(map[string]string)
					}
					result.Errors[u.ID] = err.Error()
				case d == nil:
					result.Empty++
				default:
					result.Succeeded++
				}
				mu.Unlock()

				if err != nil {
					s.logger.Error("digest failed", "user_id", u.ID, "email", u.Email, "error", err)
				}
			}
		}()
	}

dispatch:
	for _, u := range users {
		select {
		case jobs <- u:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	s.logger.Info("digest batch finished",
		"users", result.Users, "succeeded", result.Succeeded, "empty", result.Empty, "failed", result.Failed)
	if s.notifier != nil {
		s.notifier.BatchCompleted(result)
	}

	return result, ctx.Err()
}

func (s *Service) generateSafely(ctx context.Context, userID string) (d *models.Digest, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("digest panicked: %v", r)
		}
	}()
	return s.GenerateForUser(ctx, userID)
}
