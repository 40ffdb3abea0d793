// Package propublica provides a client for the ProPublica Nonprofit
// Explorer API, used to verify IRS tax-exempt registrations.
package propublica

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/banyan-labs/lead-optimizer/internal/resilience"
)

// Client defines the Nonprofit Explorer operations.
type Client interface {
	// Search looks up registered organizations by name. An empty result
	// means no registration was found, which is distinct from an error.
	Search(ctx context.Context, orgName string) ([]Organization, error)
	// Lookup fetches a single organization's registration by EIN.
	Lookup(ctx context.Context, ein string) (*Organization, error)
}

// Organization is a registered tax-exempt entity from the IRS rolls.
type Organization struct {
	EIN          int64  `json:"ein"`
	Name         string `json:"name"`
	City         string `json:"city"`
	State        string `json:"state"`
	NTEECode     string `json:"ntee_code"`
	Subsection   int    `json:"subseccd"`
	RulingDate   string `json:"ruling_date"`
	TotalRevenue int64  `json:"income_amount"`
}

// FormattedEIN returns the EIN in the standard NN-NNNNNNN form.
func (o Organization) FormattedEIN() string {
	s := fmt.Sprintf("%09d", o.EIN)
	return s[:2] + "-" + s[2:]
}

type searchResponse struct {
	TotalResults  int            `json:"total_results"`
	Organizations []Organization `json:"organizations"`
}

type lookupResponse struct {
	Organization *Organization `json:"organization"`
}

// Option configures the ProPublica client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Nonprofit Explorer client. The API is unauthenticated
// but rate-limited, so requests are throttled client-side.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://projects.propublica.org/nonprofits/api/v2",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(2), 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs a rate-limited GET. Retryable statuses are surfaced as
// transient errors so callers can apply their own backoff policy.
func (c *httpClient) get(ctx context.Context, reqURL string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, eris.Wrap(err, "propublica: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "propublica: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, resilience.NewTransientError(eris.Wrap(err, "propublica: request"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "propublica: read response body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resp.StatusCode, resilience.NewTransientError(
			eris.Errorf("propublica: status %d", resp.StatusCode), resp.StatusCode)
	}

	return body, resp.StatusCode, nil
}

func (c *httpClient) Search(ctx context.Context, orgName string) ([]Organization, error) {
	reqURL := fmt.Sprintf("%s/search.json?q=%s", c.baseURL, url.QueryEscape(orgName))

	body, statusCode, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, eris.Errorf("propublica: search unexpected status %d: %s", statusCode, string(body))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "propublica: unmarshal search response")
	}

	return result.Organizations, nil
}

func (c *httpClient) Lookup(ctx context.Context, ein string) (*Organization, error) {
	reqURL := fmt.Sprintf("%s/organizations/%s.json", c.baseURL, digitsOnly(ein))

	body, statusCode, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	// 404 means the EIN is not on the rolls, not a lookup failure.
	if statusCode == http.StatusNotFound {
		return nil, nil
	}

	if statusCode != http.StatusOK {
		return nil, eris.Errorf("propublica: lookup unexpected status %d: %s", statusCode, string(body))
	}

	var result lookupResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "propublica: unmarshal lookup response")
	}

	return result.Organization, nil
}

func digitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
