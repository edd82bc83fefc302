package digest

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/meeting-digest/backend/internal/person"
	"github.com/meeting-digest/backend/internal/storage"
	"github.com/meeting-digest/backend/internal/storage/models"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const clockLayout = "15:04"

// PersonReader reads cached people without refreshing them.
type PersonReader interface {
	GetByEmail(ctx context.Context, email string) (*models.Person, error)
}

// HistoryReader answers the meeting history questions.
type HistoryReader interface {
	CountSharedMeetings(ctx context.Context, userID, email string) (int, error)
	ColleagueMeetingCounts(ctx context.Context, contact, domain, exclude string) ([]storage.ColleagueMeetingCount, error)
}

// DigestWriter persists rendered digests.
type DigestWriter interface {
	Save(ctx context.Context, d *models.Digest) error
}

// Builder turns a user's enriched events into a stored digest.
type Builder struct {
	persons PersonReader
	history HistoryReader
	digests DigestWriter
	domain  string
	tmpl    *template.Template
}

// NewBuilder creates a report builder.
func NewBuilder(persons PersonReader, history HistoryReader, digests DigestWriter, internalDomain string) (*Builder, error) {
	tmpl, err := template.New("digest.html.tmpl").Funcs(template.FuncMap{
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}).ParseFS(templatesFS, "templates/digest.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing digest template: %w", err)
	}

	return &Builder{
		persons: persons,
		history: history,
		digests: digests,
		domain:  internalDomain,
		tmpl:    tmpl,
	}, nil
}

// Generate builds, renders and stores the digest for date (YYYY-MM-DD).
func (b *Builder) Generate(ctx context.Context, user *models.User, date string, loc *time.Location, events []models.Event) (*models.Digest, error) {
	content, err := b.Build(ctx, user, date, loc, events)
	if err != nil {
		return nil, err
	}

	js, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encoding digest: %w", err)
	}
	html, err := b.Render(content)
	if err != nil {
		return nil, err
	}

	d := &models.Digest{
		UserID:      user.ID,
		DigestDate:  date,
		ContentJSON: string(js),
		ContentHTML: html,
	}
	if err := b.digests.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("saving digest: %w", err)
	}

	return d, nil
}

// Build assembles the digest content. Times are shown in loc.
func (b *Builder) Build(ctx context.Context, user *models.User, date string, loc *time.Location, events []models.Event) (*Content, error) {
	content := &Content{
		UserEmail: user.Email,
		Date:      date,
		Meetings:  make([]Meeting, 0, len(events)),
	}

	for _, event := range events {
		meeting := Meeting{
			Title:             event.Title,
			DurationMin:       int(event.Duration() / time.Minute),
			InternalAttendees: []string{},
			ExternalAttendees: []Attendee{},
		}
		if event.StartAt != nil {
			meeting.Start = event.StartAt.In(loc).Format(clockLayout)
		}
		if event.EndAt != nil {
			meeting.End = event.EndAt.In(loc).Format(clockLayout)
		}

		for _, a := range event.Attendees {
			if user.IsSelf(a.Email) {
				continue
			}
			if person.IsInternal(a.Email, b.domain) {
				meeting.InternalAttendees = append(meeting.InternalAttendees, a.Email)
				continue
			}

			attendee, p, err := b.attendee(ctx, user, a)
			if err != nil {
				return nil, err
			}
			meeting.ExternalAttendees = append(meeting.ExternalAttendees, attendee)

			if meeting.Company == nil && p != nil && p.Company != nil && p.Company.Name != nil {
				meeting.Company = &Company{
					Name:        *p.Company.Name,
					LinkedInURL: p.Company.LinkedInURL,
					Employees:   p.Company.Employees,
				}
			}
		}

		content.Meetings = append(content.Meetings, meeting)
	}

	return content, nil
}

func (b *Builder) attendee(ctx context.Context, user *models.User, a models.Attendee) (Attendee, *models.Person, error) {
	out := Attendee{
		Email:             a.Email,
		Status:            a.Status,
		MetWithColleagues: map[string]int{},
	}

	p, err := b.persons.GetByEmail(ctx, a.Email)
	if err != nil {
		return out, nil, fmt.Errorf("reading person %s: %w", a.Email, err)
	}
	if p != nil {
		if name := p.FullName(); name != "" {
			out.Name = &name
		}
		out.Title = p.Title
		out.LinkedIn = p.LinkedInURL
		out.Avatar = p.AvatarURL
	}

	out.MeetingCount, err = b.history.CountSharedMeetings(ctx, user.ID, a.Email)
	if err != nil {
		return out, nil, err
	}

	colleagues, err := b.history.ColleagueMeetingCounts(ctx, a.Email, b.domain, user.Email)
	if err != nil {
		return out, nil, err
	}
	for _, c := range colleagues {
		out.MetWithColleagues[c.Email] = c.Count
	}

	return out, p, nil
}

// Render produces the HTML body of the digest.
func (b *Builder) Render(content *Content) (string, error) {
	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, content); err != nil {
		return "", fmt.Errorf("rendering digest: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
