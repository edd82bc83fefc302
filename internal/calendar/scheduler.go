package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/meeting-digest/backend/internal/storage/models"
)

// Notifier is told about sync outcomes, typically to push them to clients.
type Notifier interface {
	SyncCompleted(result models.SyncResult)
	SyncFailed(userID string, err error)
}

// Scheduler runs the daily digest and the periodic incremental sync.
type Scheduler struct {
	cron        *cron.Cron
	syncService *SyncService
	digest      func(ctx context.Context)
	notifier    Notifier
	logger      *slog.Logger

	mu          sync.RWMutex
	digestEntry cron.EntryID
	syncEntry   cron.EntryID

	// serializes runs of the same kind so a slow run is never overlapped
	digestMu sync.Mutex
	syncMu   sync.Mutex
}

// NewScheduler creates a scheduler. digest is invoked on every digest tick;
// notifier may be nil.
func NewScheduler(syncService *SyncService, digest func(ctx context.Context), notifier Notifier, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:        cron.New(cron.WithSeconds(), cron.WithLocation(syncService.loc)),
		syncService: syncService,
		digest:      digest,
		notifier:    notifier,
		logger:      logger.With("component", "scheduler"),
	}
}

// Start registers the jobs and starts the cron loop. digestSpec is a
// six-field cron expression; a zero syncInterval disables periodic sync.
func (s *Scheduler) Start(ctx context.Context, digestSpec string, syncInterval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(digestSpec, func() { s.runDigest(ctx) })
	if err != nil {
		return fmt.Errorf("scheduling digest %q: %w", digestSpec, err)
	}
	s.digestEntry = id

	if syncInterval > 0 {
		id, err := s.cron.AddFunc(intervalSpec(syncInterval), func() { s.runSync(ctx) })
		if err != nil {
			return fmt.Errorf("scheduling sync every %s: %w", syncInterval, err)
		}
		s.syncEntry = id
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "digest", digestSpec, "sync_interval", syncInterval)

	return nil
}

// Stop waits for running jobs and shuts the cron loop down.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// NextDigestRun returns the next digest time, or nil before Start.
func (s *Scheduler) NextDigestRun() *time.Time {
	return s.next(func() cron.EntryID { return s.digestEntry })
}

// NextSyncRun returns the next periodic sync time, or nil when disabled.
func (s *Scheduler) NextSyncRun() *time.Time {
	return s.next(func() cron.EntryID { return s.syncEntry })
}

func (s *Scheduler) next(id func() cron.EntryID) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id() == 0 {
		return nil
	}
	entry := s.cron.Entry(id())
	if entry.Next.IsZero() {
		return nil
	}
	return &entry.Next
}

// SyncUser runs a sync for one user now and reports it to the notifier.
func (s *Scheduler) SyncUser(ctx context.Context, userID string, full bool) (*models.SyncResult, error) {
	var (
		result *models.SyncResult
		err    error
	)
	if full {
		result, err = s.syncService.SyncEvents(ctx, userID)
	} else {
		result, err = s.syncService.IncrementalSync(ctx, userID)
	}

	if err != nil {
		s.logger.Error("sync failed", "user_id", userID, "error", err)
		if s.notifier != nil {
			s.notifier.SyncFailed(userID, err)
		}
		return result, err
	}

	if s.notifier != nil {
		s.notifier.SyncCompleted(*result)
	}
	return result, nil
}

// TriggerDigest runs the digest job in the background.
func (s *Scheduler) TriggerDigest(ctx context.Context) {
	go s.runDigest(ctx)
}

func (s *Scheduler) runDigest(ctx context.Context) {
	if !s.digestMu.TryLock() {
		s.logger.Warn("digest run already in progress, skipping tick")
		return
	}
	defer s.digestMu.Unlock()

	start := time.Now()
	s.logger.Info("digest run starting")
	s.digest(ctx)
	s.logger.Info("digest run finished", "elapsed", time.Since(start))
}

func (s *Scheduler) runSync(ctx context.Context) {
	if !s.syncMu.TryLock() {
		s.logger.Warn("sync run already in progress, skipping tick")
		return
	}
	defer s.syncMu.Unlock()

	users, err := s.syncService.users.List(ctx)
	if err != nil {
		s.logger.Error("listing users for sync", "error", err)
		return
	}

	for _, u := range users {
		if ctx.Err() != nil {
			return
		}
		s.SyncUser(ctx, u.ID, false)
	}
}

// intervalSpec converts an interval to a cron "@every" spec.
func intervalSpec(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	return "@every " + d.String()
}
