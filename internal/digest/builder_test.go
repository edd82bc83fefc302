package digest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meeting-digest/backend/internal/storage"
	"github.com/meeting-digest/backend/internal/storage/models"
)

type personTable map[string]*models.Person

func (p personTable) GetByEmail(_ context.Context, email string) (*models.Person, error) {
	return p[email], nil
}

type fixedHistory struct {
	shared     map[string]int
	colleagues map[string][]storage.ColleagueMeetingCount
}

func (h fixedHistory) CountSharedMeetings(_ context.Context, _, email string) (int, error) {
	return h.shared[email], nil
}

func (h fixedHistory) ColleagueMeetingCounts(_ context.Context, contact, _, _ string) ([]storage.ColleagueMeetingCount, error) {
	return h.colleagues[contact], nil
}

type digestSink struct {
	saved []models.Digest
}

func (s *digestSink) Save(_ context.Context, d *models.Digest) error {
	d.ID = "digest-1"
	s.saved = append(s.saved, *d)
	return nil
}

func str(s string) *string { return &s }

func at(hour, minute int) *time.Time {
	t := time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
	return &t
}

func goldenFixture(t *testing.T) (*Builder, *digestSink, *models.User, []models.Event, *time.Location) {
	t.Helper()

	employees := 250
	persons := personTable{
		"jane@x.com": {
			Email:       "jane@x.com",
			FirstName:   str("Jane"),
			LastName:    str("Doe"),
			Title:       str("CTO"),
			LinkedInURL: str("https://linkedin.com/in/jane"),
			Company: &models.Company{
				Name:        str("X Corp"),
				LinkedInURL: str("https://linkedin.com/company/x"),
				Employees:   &employees,
			},
		},
	}
	history := fixedHistory{
		shared: map[string]int{"jane@x.com": 3},
		colleagues: map[string][]storage.ColleagueMeetingCount{
			"jane@x.com": {{Email: "ann@ug.com", Count: 2}},
		},
	}
	sink := &digestSink{}

	b, err := NewBuilder(persons, history, sink, "ug.com")
	require.NoError(t, err)

	loc, err := time.LoadLocation("Europe/Belgrade")
	require.NoError(t, err)

	user := &models.User{ID: "u1", Email: "rep@ug.com"}
	events := []models.Event{
		{
			Title:   "Intro call",
			StartAt: at(8, 0),
			EndAt:   at(8, 45),
			Attendees: []models.Attendee{
				{Email: "rep@ug.com", Status: models.AttendeeAccepted},
				{Email: "ann@ug.com", Status: models.AttendeeAccepted},
				{Email: "jane@x.com", Status: models.AttendeeAccepted},
				{Email: "bob@x.com", Status: models.AttendeeRejected},
			},
		},
		{
			Title:   "Sync",
			StartAt: at(13, 0),
			EndAt:   at(13, 30),
			Attendees: []models.Attendee{
				{Email: "REP@ug.com", Status: models.AttendeeAccepted},
				{Email: "ann@ug.com", Status: models.AttendeeAccepted},
			},
		},
	}

	return b, sink, user, events, loc
}

func TestBuilder_BuildGolden(t *testing.T) {
	b, _, user, events, loc := goldenFixture(t)

	content, err := b.Build(context.Background(), user, "2026-03-02", loc, events)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.AssertJson(t, "digest_content", content)
}

func TestBuilder_GenerateStoresJSONAndHTML(t *testing.T) {
	b, sink, user, events, loc := goldenFixture(t)

	d, err := b.Generate(context.Background(), user, "2026-03-02", loc, events)
	require.NoError(t, err)

	assert.Equal(t, "digest-1", d.ID)
	require.Len(t, sink.saved, 1)
	assert.Equal(t, "u1", sink.saved[0].UserID)
	assert.Equal(t, "2026-03-02", sink.saved[0].DigestDate)

	var content Content
	require.NoError(t, json.Unmarshal([]byte(d.ContentJSON), &content))
	require.Len(t, content.Meetings, 2)
	assert.Equal(t, "X Corp", content.Meetings[0].Company.Name)

	assert.Contains(t, d.ContentHTML, "Your meetings for 2026-03-02")
	assert.Contains(t, d.ContentHTML, "09:00&ndash;09:45 Intro call")
	assert.Contains(t, d.ContentHTML, "<strong>Jane Doe</strong>")
	assert.Contains(t, d.ContentHTML, `href="https://linkedin.com/company/x"`)
	assert.Contains(t, d.ContentHTML, "<strong>bob@x.com</strong>")
	assert.Contains(t, d.ContentHTML, "3 meetings so far")
	assert.NotContains(t, d.ContentHTML, "No meetings today.")
}

func TestBuilder_RenderEscapes(t *testing.T) {
	b, _, _, _, _ := goldenFixture(t)

	html, err := b.Render(&Content{
		UserEmail: "rep@ug.com",
		Date:      "2026-03-02",
		Meetings:  []Meeting{{Title: "<script>alert(1)</script>", ExternalAttendees: []Attendee{}}},
	})
	require.NoError(t, err)

	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestBuilder_RenderEmptyDay(t *testing.T) {
	b, _, _, _, _ := goldenFixture(t)

	html, err := b.Render(&Content{UserEmail: "rep@ug.com", Date: "2026-03-02"})
	require.NoError(t, err)
	assert.Contains(t, html, "No meetings today.")
}

func TestBuilder_FirstAttendeeCompanyWins(t *testing.T) {
	sink := &digestSink{}
	persons := personTable{
		"a@x.com": {Email: "a@x.com", Company: &models.Company{}},
		"b@y.com": {Email: "b@y.com", Company: &models.Company{Name: str("Y Inc")}},
		"c@z.com": {Email: "c@z.com", Company: &models.Company{Name: str("Z Ltd")}},
	}
	b, err := NewBuilder(persons, fixedHistory{}, sink, "ug.com")
	require.NoError(t, err)

	content, err := b.Build(context.Background(), &models.User{ID: "u1", Email: "rep@ug.com"}, "2026-03-02", time.UTC, []models.Event{{
		Title:   "Three companies",
		StartAt: at(9, 0),
		EndAt:   at(10, 0),
		Attendees: []models.Attendee{
			{Email: "a@x.com", Status: models.AttendeeAccepted},
			{Email: "b@y.com", Status: models.AttendeeAccepted},
			{Email: "c@z.com", Status: models.AttendeeAccepted},
		},
	}})
	require.NoError(t, err)

	require.NotNil(t, content.Meetings[0].Company)
	assert.Equal(t, "Y Inc", content.Meetings[0].Company.Name)
	assert.Equal(t, 60, content.Meetings[0].DurationMin)
	assert.Empty(t, content.Meetings[0].InternalAttendees)
}
