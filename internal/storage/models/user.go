// Package models contains the domain models for the application.
package models

import (
	"strings"
	"time"
)

// User is a calendar owner whose feed is mirrored locally.
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	CalendarToken *string    `json:"-"`
	Timezone      string     `json:"timezone,omitempty"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NeverSynced returns true if the user has no sync checkpoint yet.
func (u *User) NeverSynced() bool {
	return u.LastSyncAt == nil
}

// IsSelf returns true if email is the user's own address.
func (u *User) IsSelf(email string) bool {
	return strings.EqualFold(strings.TrimSpace(email), u.Email)
}

// Location resolves the user's time zone, falling back to def.
func (u *User) Location(def *time.Location) *time.Location {
	if u.Timezone != "" {
		if loc, err := time.LoadLocation(u.Timezone); err == nil {
			return loc
		}
	}
	if def == nil {
		return time.UTC
	}
	return def
}
