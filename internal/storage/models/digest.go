package models

import "time"

// Digest is a rendered daily meeting digest for one user and date.
type Digest struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	DigestDate  string    `json:"digest_date"` // YYYY-MM-DD in the user's time zone
	ContentJSON string    `json:"content_json"`
	ContentHTML string    `json:"content_html"`
	CreatedAt   time.Time `json:"created_at"`
}

// DigestDateLayout formats DigestDate.
const DigestDateLayout = "2006-01-02"

// DigestBatchResult summarizes one digest run over all users.
type DigestBatchResult struct {
	Users     int               `json:"users"`
	Succeeded int               `json:"succeeded"`
	Empty     int               `json:"empty"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"` // user ID -> error
}
