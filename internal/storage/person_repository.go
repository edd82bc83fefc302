package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/meeting-digest/backend/internal/storage/models"
)

// PersonRepository is the single-key store behind the enrichment cache.
type PersonRepository struct {
	BaseRepository
}

// NewPersonRepository creates a new person repository.
func NewPersonRepository(db *DB) *PersonRepository {
	return &PersonRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// NormalizeEmail is the cache key form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetByEmail returns the cached person, or nil, nil on a miss.
func (r *PersonRepository) GetByEmail(ctx context.Context, email string) (*models.Person, error) {
	var (
		p          models.Person
		hasCompany bool
		company    models.Company
		employees  sql.NullInt64
	)

	err := r.DB().QueryRowContext(ctx, `
		SELECT email, first_name, last_name, title, avatar_url, linkedin_url,
		       has_company, company_name, company_linkedin, company_employees, fetched_at
		FROM persons WHERE email = ?
	`, NormalizeEmail(email)).Scan(
		&p.Email, &p.FirstName, &p.LastName, &p.Title, &p.AvatarURL, &p.LinkedInURL,
		&hasCompany, &company.Name, &company.LinkedInURL, &employees, &p.FetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying person: %w", err)
	}

	if hasCompany {
		if employees.Valid {
			n := int(employees.Int64)
			company.Employees = &n
		}
		p.Company = &company
	}

	return &p, nil
}

// Upsert inserts the person or overwrites every column of an existing row.
// Concurrent writers for the same email resolve as last-write-wins.
func (r *PersonRepository) Upsert(ctx context.Context, p *models.Person) error {
	p.Email = NormalizeEmail(p.Email)

	var (
		hasCompany     bool
		name, linkedin *string
		employees      *int
	)
	if p.Company != nil {
		hasCompany = true
		name, linkedin, employees = p.Company.Name, p.Company.LinkedInURL, p.Company.Employees
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO persons (
			email, first_name, last_name, title, avatar_url, linkedin_url,
			has_company, company_name, company_linkedin, company_employees, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			title = excluded.title,
			avatar_url = excluded.avatar_url,
			linkedin_url = excluded.linkedin_url,
			has_company = excluded.has_company,
			company_name = excluded.company_name,
			company_linkedin = excluded.company_linkedin,
			company_employees = excluded.company_employees,
			fetched_at = excluded.fetched_at
	`,
		p.Email, p.FirstName, p.LastName, p.Title, p.AvatarURL, p.LinkedInURL,
		hasCompany, name, linkedin, employees, utc(p.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting person: %w", err)
	}

	return nil
}
