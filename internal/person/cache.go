package person

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/meeting-digest/backend/internal/clock"
	"github.com/meeting-digest/backend/internal/storage/models"
)

// TTL is how long a fetched person is served without a refresh attempt.
const TTL = 30 * 24 * time.Hour

// Store is the single-key person store behind the cache.
type Store interface {
	GetByEmail(ctx context.Context, email string) (*models.Person, error)
	Upsert(ctx context.Context, p *models.Person) error
}

// Cache is a read-through person cache. The TTL only decides when a
// refresh is attempted; a stale row stays servable while the lookup fails.
type Cache struct {
	store  Store
	lookup Lookup
	clock  clock.Clock
	domain string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache creates a cache. Emails in internalDomain are never enriched.
func NewCache(store Store, lookup Lookup, clk clock.Clock, internalDomain string, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		lookup: lookup,
		clock:  clk,
		domain: strings.TrimPrefix(strings.ToLower(strings.TrimSpace(internalDomain)), "@"),
		ttl:    TTL,
		logger: logger.With("component", "enrichment"),
	}
}

// IsInternal reports whether email belongs to the organization's domain.
func (c *Cache) IsInternal(email string) bool {
	return IsInternal(email, c.domain)
}

// IsInternal reports whether email ends in "@"+domain, case-insensitively.
func IsInternal(email, domain string) bool {
	if domain == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), "@"+strings.ToLower(domain))
}

// Enrich returns the person for email, or nil when none is available.
// Blank and internal emails return nil without any I/O.
func (c *Cache) Enrich(ctx context.Context, email string) *models.Person {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || c.IsInternal(email) {
		return nil
	}

	cached, err := c.store.GetByEmail(ctx, email)
	if err != nil {
		c.logger.Warn("reading person cache", "email", email, "error", err)
		cached = nil
	}

	now := c.clock.Now()
	if cached != nil && cached.IsFresh(now, c.ttl) {
		return cached
	}

	fetched, err := c.lookup.Lookup(ctx, email)
	if err != nil || fetched == nil {
		if cached != nil {
			c.logger.Warn("person lookup failed, serving stale entry",
				"email", email, "fetched_at", cached.FetchedAt, "error", err)
			return cached
		}
		c.logger.Warn("person lookup failed, nothing cached", "email", email, "error", err)
		return nil
	}

	fetched.Email = email
	fetched.FetchedAt = &now
	if err := c.store.Upsert(ctx, fetched); err != nil {
		c.logger.Error("storing person", "email", email, "error", err)
	}

	return fetched
}
