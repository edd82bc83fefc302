package person

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meeting-digest/backend/internal/clock"
	"github.com/meeting-digest/backend/internal/storage/models"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type memStore struct {
	mu      sync.Mutex
	rows    map[string]models.Person
	reads   int
	writes  int
	readErr error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]models.Person)}
}

func (s *memStore) GetByEmail(_ context.Context, email string) (*models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	p, ok := s.rows[email]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memStore) Upsert(_ context.Context, p *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.rows[p.Email] = *p
	return nil
}

type stubLookup struct {
	mu     sync.Mutex
	calls  []string
	err    error
	person func(email string) *models.Person
}

func (l *stubLookup) Lookup(_ context.Context, email string) (*models.Person, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, email)
	if l.err != nil {
		return nil, l.err
	}
	return l.person(email), nil
}

func str(s string) *string { return &s }

func jane(email string) *models.Person {
	return &models.Person{
		Email:     email,
		FirstName: str("Jane"),
		LastName:  str("Doe"),
		Company:   &models.Company{Name: str("X Corp")},
	}
}

var start = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newTestCache(store Store, lookup Lookup, clk clock.Clock) *Cache {
	return NewCache(store, lookup, clk, "UG.com", discard)
}

func TestEnrich_OneRemoteCallPerTTLWindow(t *testing.T) {
	store := newMemStore()
	lookup := &stubLookup{person: jane}
	clk := clock.NewFake(start)
	cache := newTestCache(store, lookup, clk)
	ctx := context.Background()

	first := cache.Enrich(ctx, "Jane@X.com")
	require.NotNil(t, first)
	assert.Equal(t, "jane@x.com", first.Email)
	assert.Equal(t, start, *first.FetchedAt)

	for _, d := range []time.Duration{time.Minute, 24 * time.Hour, TTL - time.Second} {
		clk.Set(start.Add(d))
		got := cache.Enrich(ctx, "jane@x.com")
		require.NotNil(t, got)
		assert.Equal(t, "Jane Doe", got.FullName())
	}

	assert.Equal(t, []string{"jane@x.com"}, lookup.calls)
	assert.Equal(t, 1, store.writes)
}

func TestEnrich_ExactlyTTLOldIsStale(t *testing.T) {
	store := newMemStore()
	lookup := &stubLookup{person: jane}
	clk := clock.NewFake(start)
	cache := newTestCache(store, lookup, clk)
	ctx := context.Background()

	cache.Enrich(ctx, "jane@x.com")
	clk.Set(start.Add(TTL))
	got := cache.Enrich(ctx, "jane@x.com")

	require.NotNil(t, got)
	assert.Len(t, lookup.calls, 2)
	assert.Equal(t, start.Add(TTL), *got.FetchedAt)
	assert.Equal(t, start.Add(TTL), *store.rows["jane@x.com"].FetchedAt)
}

func TestEnrich_StaleRowServedUnchangedOnFailure(t *testing.T) {
	store := newMemStore()
	fetched := start.Add(-90 * 24 * time.Hour)
	cached := models.Person{
		Email:     "jane@x.com",
		Title:     str("CTO"),
		Company:   &models.Company{Name: str("Old Corp")},
		FetchedAt: &fetched,
	}
	store.rows["jane@x.com"] = cached

	lookup := &stubLookup{err: errors.New("upstream down")}
	cache := newTestCache(store, lookup, clock.NewFake(start))

	got := cache.Enrich(context.Background(), "jane@x.com")

	require.NotNil(t, got)
	assert.Equal(t, cached, *got)
	assert.Equal(t, cached, store.rows["jane@x.com"])
	assert.Zero(t, store.writes)
	assert.Len(t, lookup.calls, 1)
}

func TestEnrich_MissAndFailureIsAbsent(t *testing.T) {
	store := newMemStore()
	lookup := &stubLookup{err: errors.New("timeout")}
	cache := newTestCache(store, lookup, clock.NewFake(start))

	assert.Nil(t, cache.Enrich(context.Background(), "nobody@x.com"))
	assert.Empty(t, store.rows)
}

func TestEnrich_NullFetchedAtIsStale(t *testing.T) {
	store := newMemStore()
	store.rows["jane@x.com"] = models.Person{Email: "jane@x.com"}
	lookup := &stubLookup{person: jane}
	cache := newTestCache(store, lookup, clock.NewFake(start))

	got := cache.Enrich(context.Background(), "jane@x.com")

	require.NotNil(t, got)
	assert.Len(t, lookup.calls, 1)
	assert.Equal(t, "Jane Doe", got.FullName())
}

func TestEnrich_NoIOForBlankOrInternal(t *testing.T) {
	for _, email := range []string{"", "   ", "a@ug.com", "Boss@UG.COM", " colleague@ug.com "} {
		t.Run(email, func(t *testing.T) {
			store := newMemStore()
			lookup := &stubLookup{person: jane}
			cache := newTestCache(store, lookup, clock.NewFake(start))

			assert.Nil(t, cache.Enrich(context.Background(), email))
			assert.Zero(t, store.reads)
			assert.Empty(t, lookup.calls)
		})
	}
}

func TestEnrich_CacheReadErrorFallsThroughToLookup(t *testing.T) {
	store := newMemStore()
	store.readErr = errors.New("disk on fire")
	lookup := &stubLookup{person: jane}
	cache := newTestCache(store, lookup, clock.NewFake(start))

	got := cache.Enrich(context.Background(), "jane@x.com")

	require.NotNil(t, got)
	assert.Len(t, lookup.calls, 1)
}

func TestIsInternal(t *testing.T) {
	assert.True(t, IsInternal("a@ug.com", "ug.com"))
	assert.True(t, IsInternal("A@UG.com", "UG.COM"))
	assert.False(t, IsInternal("a@notug.com", "ug.com"))
	assert.False(t, IsInternal("a@ug.com.evil.io", "ug.com"))
	assert.False(t, IsInternal("a@ug.com", ""))
}
