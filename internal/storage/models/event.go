package models

import (
	"strings"
	"time"
)

// Attendee status values written by the sync engine. Other values
// (declined, tentative) may come from the feed and are kept verbatim.
const (
	AttendeeAccepted  = "accepted"
	AttendeeRejected  = "rejected"
	AttendeeDeclined  = "declined"
	AttendeeTentative = "tentative"
)

// Event is a locally mirrored calendar event owned by exactly one user.
// (UserID, ExternalID) is unique.
type Event struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	ExternalID int64      `json:"external_id"`
	Title      string     `json:"title"`
	StartAt    *time.Time `json:"start_at,omitempty"`
	EndAt      *time.Time `json:"end_at,omitempty"`
	ChangedAt  *time.Time `json:"changed_at,omitempty"`
	SyncedAt   time.Time  `json:"synced_at"`
	Deleted    bool       `json:"deleted"`
	Attendees  []Attendee `json:"attendees"`
}

// Attendee is owned by its event and replaced wholesale on every upsert.
type Attendee struct {
	Email  string `json:"email"`
	Status string `json:"status"`
}

// IsDeclined returns true for a declined attendee, case-insensitively.
func (a Attendee) IsDeclined() bool {
	return strings.EqualFold(a.Status, AttendeeDeclined)
}

// Duration returns the event length, or zero when either bound is unknown.
func (e *Event) Duration() time.Duration {
	if e.StartAt == nil || e.EndAt == nil {
		return 0
	}
	return e.EndAt.Sub(*e.StartAt)
}
