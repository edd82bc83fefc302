// Package person enriches external meeting attendees with person and
// company data behind a time-boxed cache.
package person

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/meeting-digest/backend/internal/storage/models"
)

// Lookup resolves a person by email from the remote enrichment service.
type Lookup interface {
	Lookup(ctx context.Context, email string) (*models.Person, error)
}

// Client calls GET {base}/person/{email}.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a lookup client. Requests carry apiKey as a bearer
// token when it is set and are bounded by timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	var transport http.RoundTripper = http.DefaultTransport
	if apiKey != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey}),
			Base:   http.DefaultTransport,
		}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type lookupResponse struct {
	FirstName   *string          `json:"first_name"`
	LastName    *string          `json:"last_name"`
	Avatar      *string          `json:"avatar"`
	Title       *string          `json:"title"`
	LinkedInURL *string          `json:"linkedin_url"`
	Company     *companyResponse `json:"company"`
}

type companyResponse struct {
	Name        *string `json:"name"`
	LinkedInURL *string `json:"linkedin_url"`
	Employees   *int    `json:"employees"`
}

// Lookup implements Lookup. The returned person has no FetchedAt.
func (c *Client) Lookup(ctx context.Context, email string) (*models.Person, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/person/"+url.PathEscape(email), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("looking up person: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("person lookup returned status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding person: %w", err)
	}

	p := &models.Person{
		Email:       email,
		FirstName:   body.FirstName,
		LastName:    body.LastName,
		Title:       body.Title,
		AvatarURL:   body.Avatar,
		LinkedInURL: body.LinkedInURL,
	}
	if body.Company != nil {
		p.Company = &models.Company{
			Name:        body.Company.Name,
			LinkedInURL: body.Company.LinkedInURL,
			Employees:   body.Company.Employees,
		}
	}

	return p, nil
}
