package feed

import (
	"context"
	"strings"
)

// Credentials resolves the bearer token used to read a user's feed.
// An empty token with a nil error means none is configured.
type Credentials interface {
	CalendarToken(ctx context.Context, userEmail string) (string, error)
}

// StaticCredentials maps lowercased emails to API keys.
type StaticCredentials map[string]string

// CalendarToken implements Credentials.
func (s StaticCredentials) CalendarToken(_ context.Context, userEmail string) (string, error) {
	return s[strings.ToLower(strings.TrimSpace(userEmail))], nil
}

// ChainCredentials returns the first non-empty token from its sources.
type ChainCredentials []Credentials

// CalendarToken implements Credentials.
func (c ChainCredentials) CalendarToken(ctx context.Context, userEmail string) (string, error) {
	for _, src := range c {
		token, err := src.CalendarToken(ctx, userEmail)
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
	}
	return "", nil
}
