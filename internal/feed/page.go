// Package feed reads the external paginated calendar events API.
package feed

import (
	"context"
	"strings"
	"time"
)

// TimestampLayout is the feed's local date-time format. Values carry no
// offset and are interpreted in the owning user's time zone.
const TimestampLayout = "2006-01-02T15:04:05"

// Page is one page of the events feed.
type Page struct {
	Total       int    `json:"total"`
	PerPage     int    `json:"per_page"`
	CurrentPage int    `json:"current_page"`
	Data        []Item `json:"data"`
}

// Item is a single event as reported by the feed. The feed orders items by
// Changed, newest first.
type Item struct {
	ID       int64    `json:"id"`
	Changed  string   `json:"changed"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Title    string   `json:"title"`
	Accepted []string `json:"accepted"`
	Rejected []string `json:"rejected"`
}

// Fetcher retrieves one 1-based page of a user's events. A nil page means
// absent: no credential is configured or the upstream call failed. Callers
// treat absent as "no more data this run" and never retry on their own.
type Fetcher interface {
	FetchPage(ctx context.Context, userEmail string, page int) *Page
}

// TotalPages returns ceil(total/perPage), or 0 when perPage is not positive.
func TotalPages(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// IsLast reports whether no page follows this one.
func (p *Page) IsLast(pageNumber int) bool {
	return pageNumber >= TotalPages(p.Total, p.PerPage)
}

// FetchAll reads every page for userEmail in order and concatenates the
// items. It issues one request for page 1 and then exactly one per
// remaining page; an absent page ends the walk with what was read so far.
func FetchAll(ctx context.Context, f Fetcher, userEmail string) []Item {
	var items []Item
	for n := 1; ; n++ {
		page := f.FetchPage(ctx, userEmail, n)
		if page == nil {
			return items
		}
		items = append(items, page.Data...)
		if page.IsLast(n) {
			return items
		}
	}
}

// ParseTimestamp parses a feed timestamp in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(TimestampLayout, strings.TrimSpace(value), loc)
}
