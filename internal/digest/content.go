package digest

// Content is the structured body of a daily digest.
type Content struct {
	UserEmail string    `json:"user_email"`
	Date      string    `json:"date"`
	Meetings  []Meeting `json:"meetings"`
}

// Meeting is one event of the day as rendered in the digest.
type Meeting struct {
	Title             string     `json:"title"`
	Start             string     `json:"start"` // HH:mm in the user's time zone
	End               string     `json:"end"`
	DurationMin       int        `json:"duration_min"`
	InternalAttendees []string   `json:"internal_attendees"`
	ExternalAttendees []Attendee `json:"external_attendees"`
	Company           *Company   `json:"company"`
}

// Attendee is an external attendee with whatever the cache knows about them.
type Attendee struct {
	Email             string         `json:"email"`
	Name              *string        `json:"name"`
	Title             *string        `json:"title"`
	LinkedIn          *string        `json:"linkedin"`
	Avatar            *string        `json:"avatar"`
	Status            string         `json:"status"`
	MeetingCount      int            `json:"meeting_count"`
	MetWithColleagues map[string]int `json:"met_with_colleagues"`
}

// Company is taken from the first external attendee that has one.
type Company struct {
	Name        string  `json:"name"`
	LinkedInURL *string `json:"linkedin_url"`
	Employees   *int    `json:"employees"`
}
