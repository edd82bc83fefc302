package models

import (
	"strings"
	"time"
)

// Person is a cached enrichment record keyed by email.
type Person struct {
	Email       string     `json:"email"`
	FirstName   *string    `json:"first_name,omitempty"`
	LastName    *string    `json:"last_name,omitempty"`
	Title       *string    `json:"title,omitempty"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
	LinkedInURL *string    `json:"linkedin_url,omitempty"`
	Company     *Company   `json:"company,omitempty"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty"`
}

// Company is the employer reported for a person. A nil *Company means the
// lookup returned no company at all.
type Company struct {
	Name        *string `json:"name,omitempty"`
	LinkedInURL *string `json:"linkedin_url,omitempty"`
	Employees   *int    `json:"employees,omitempty"`
}

// FullName joins the available name parts; empty when neither is known.
func (p *Person) FullName() string {
	var parts []string
	if p.FirstName != nil && *p.FirstName != "" {
		parts = append(parts, *p.FirstName)
	}
	if p.LastName != nil && *p.LastName != "" {
		parts = append(parts, *p.LastName)
	}
	return strings.Join(parts, " ")
}

// IsFresh reports whether the row was fetched less than ttl before now.
// A row with no fetch time is always stale.
func (p *Person) IsFresh(now time.Time, ttl time.Duration) bool {
	if p.FetchedAt == nil {
		return false
	}
	return now.Sub(*p.FetchedAt) < ttl
}
