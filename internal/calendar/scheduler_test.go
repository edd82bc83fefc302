package calendar

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meeting-digest/backend/internal/apperror"
	"github.com/meeting-digest/backend/internal/storage/models"
)

type recordingNotifier struct {
	mu        sync.Mutex
	completed []models.SyncResult
	failed    []string
}

func (n *recordingNotifier) SyncCompleted(result models.SyncResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, result)
}

func (n *recordingNotifier) SyncFailed(userID string, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, userID)
}

func TestScheduler_StartRegistersJobs(t *testing.T) {
	f := newFixture(t, newestFirst(1))
	s := NewScheduler(f.svc, func(context.Context) {}, nil, discard)

	assert.Nil(t, s.NextDigestRun())

	require.NoError(t, s.Start(context.Background(), "0 0 8 * * *", 15*time.Minute))
	defer s.Stop()

	next := s.NextDigestRun()
	require.NotNil(t, next)
	assert.Equal(t, 8, next.Hour())
	assert.Zero(t, next.Minute())
	assert.NotNil(t, s.NextSyncRun())
}

func TestScheduler_SyncDisabled(t *testing.T) {
	f := newFixture(t, newestFirst(1))
	s := NewScheduler(f.svc, func(context.Context) {}, nil, discard)

	require.NoError(t, s.Start(context.Background(), "0 0 8 * * *", 0))
	defer s.Stop()

	assert.Nil(t, s.NextSyncRun())
}

func TestScheduler_InvalidCron(t *testing.T) {
	f := newFixture(t, nil)
	s := NewScheduler(f.svc, func(context.Context) {}, nil, discard)

	assert.Error(t, s.Start(context.Background(), "every morning", 0))
}

func TestScheduler_SyncUserNotifies(t *testing.T) {
	f := newFixture(t, newestFirst(3))
	n := &recordingNotifier{}
	s := NewScheduler(f.svc, func(context.Context) {}, n, discard)
	ctx := context.Background()

	result, err := s.SyncUser(ctx, f.user.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.SyncModeFull, result.Mode)

	_, err = s.SyncUser(ctx, "ghost", false)
	assert.True(t, apperror.IsNotFound(err))

	require.Len(t, n.completed, 1)
	assert.Equal(t, 3, n.completed[0].Processed)
	assert.Equal(t, []string{"ghost"}, n.failed)
}

func TestScheduler_RunSyncCoversAllUsers(t *testing.T) {
	f := newFixture(t, newestFirst(2))
	n := &recordingNotifier{}
	s := NewScheduler(f.svc, func(context.Context) {}, n, discard)
	require.NoError(t, f.users.Create(context.Background(), &models.User{Email: "second@acme.com"}))

	s.runSync(context.Background())

	assert.Len(t, n.completed, 2)
}

func TestScheduler_DigestRunsAreNotOverlapped(t *testing.T) {
	f := newFixture(t, nil)
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var runs int
	var mu sync.Mutex
	s := NewScheduler(f.svc, func(context.Context) {
		mu.Lock()
		runs++
		mu.Unlock()
		started <- struct{}{}
		<-release
	}, nil, discard)

	s.TriggerDigest(context.Background())
	<-started
	s.runDigest(context.Background())
	close(release)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, runs)
}

func TestIntervalSpec(t *testing.T) {
	assert.Equal(t, "@every 15m0s", intervalSpec(15*time.Minute))
	assert.Equal(t, "@every 1s", intervalSpec(time.Millisecond))
}
