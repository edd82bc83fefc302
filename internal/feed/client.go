package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// RetryPolicy bounds how often a failed page request is repeated.
// Backoff doubles from InitialBackoff and is capped at MaxBackoff.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy is three attempts with 100ms/200ms waits.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     time.Second,
}

// Backoff returns the wait before the given retry (1 = first retry).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

var errMalformedPage = errors.New("malformed feed page")

// StatusError is returned for non-2xx feed responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed returned status %d", e.Code)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client fetches pages from the calendar feed over HTTP.
type Client struct {
	baseURL   string
	creds     Credentials
	timeout   time.Duration
	transport http.RoundTripper
	retry     RetryPolicy
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport sets the base round tripper under the bearer transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// WithSleep replaces the backoff wait, mostly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient creates a feed client rooted at baseURL.
func NewClient(baseURL string, creds Credentials, timeout time.Duration, retry RetryPolicy, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		creds:     creds,
		timeout:   timeout,
		transport: http.DefaultTransport,
		retry:     retry,
		logger:    logger.With("component", "feed"),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage implements Fetcher. Failures are logged and reported as nil.
func (c *Client) FetchPage(ctx context.Context, userEmail string, page int) *Page {
	token, err := c.creds.CalendarToken(ctx, userEmail)
	if err != nil {
		c.logger.Error("resolving feed credential", "email", userEmail, "error", err)
		return nil
	}
	if token == "" {
		c.logger.Warn("no feed credential configured", "email", userEmail)
		return nil
	}

	httpClient := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   c.transport,
		},
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.attempts(); attempt++ {
		if attempt > 1 {
			wait := c.retry.Backoff(attempt - 1)
			c.logger.Debug("retrying feed page", "email", userEmail, "page", page, "attempt", attempt, "wait", wait)
			if err := c.sleep(ctx, wait); err != nil {
				lastErr = err
				break
			}
		}

		result, err := c.fetch(ctx, httpClient, userEmail, page)
		if err == nil {
			c.logger.Debug("fetched feed page", "email", userEmail, "page", page, "items", len(result.Data), "total", result.Total)
			return result
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}

	c.logger.Error("fetching feed page", "email", userEmail, "page", page, "error", lastErr)
	return nil
}

func (c *Client) fetch(ctx context.Context, httpClient *http.Client, userEmail string, page int) (*Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("rep_email", userEmail)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var result Page
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w %d: %v", errMalformedPage, page, err)
	}

	return &result, nil
}

// retryable: transport failures and temporary statuses, unless the caller
// has given up.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return !errors.Is(err, errMalformedPage)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
