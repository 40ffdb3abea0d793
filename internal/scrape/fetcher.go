// Package scrape fetches lead websites via net/http and reduces the HTML
// to the plaintext corpus and structural signals the resolver and scorer
// consume.
package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/banyan-labs/lead-optimizer/internal/model"
	"github.com/banyan-labs/lead-optimizer/internal/resilience"
)

// Fetcher retrieves a lead's homepage and extracts website signals.
type Fetcher interface {
	Fetch(ctx context.Context, websiteURL string) (*model.WebsiteSignals, error)
}

// HTTPFetcher fetches pages directly.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	limiter   *rate.Limiter
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = hc
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// WithMaxBody caps the bytes read per page.
func WithMaxBody(n int64) Option {
	return func(f *HTTPFetcher) {
		f.maxBody = n
	}
}

// WithRateLimit throttles outbound fetches.
func WithRateLimit(rps float64, burst int) Option {
	return func(f *HTTPFetcher) {
		f.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewHTTPFetcher creates a fetcher with sensible defaults.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: "Mozilla/5.0 (compatible; LeadOptimizerBot/1.0)",
		maxBody:   512 * 1024,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var _ Fetcher = (*HTTPFetcher)(nil)

// Fetch retrieves the homepage at websiteURL. A bare domain gets an https
// scheme. Network failures and retryable statuses are transient; 4xx pages
// come back as unreachable signals rather than errors, since a dead site is
// still evidence about the lead.
func (f *HTTPFetcher) Fetch(ctx context.Context, websiteURL string) (*model.WebsiteSignals, error) {
	target := NormalizeURL(websiteURL)
	if target == "" {
		return nil, eris.New("scrape: empty url")
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "scrape: rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "scrape: fetch"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "scrape: read body"), resp.StatusCode)
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("scrape: status %d", resp.StatusCode), resp.StatusCode)
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode >= 400 {
		return &model.WebsiteSignals{Reachable: false, FinalURL: finalURL}, nil
	}

	html := string(body)
	donationURL := findDonationLink(html, finalURL)
	corpus := strings.ToLower(stripHTML(html))

	return &model.WebsiteSignals{
		Reachable:       true,
		FinalURL:        finalURL,
		Title:           extractTitle(body),
		Corpus:          corpus,
		HasDonationPage: donationURL != "" || containsAny(corpus, donationPhrases),
		DonationURL:     donationURL,
		MultiLocation:   containsAny(corpus, multiLocationPhrases),
	}, nil
}

// NormalizeURL ensures a URL has a scheme, defaulting bare domains to https.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	return raw
}

var donationPhrases = []string{
	"donate now",
	"make a donation",
	"give today",
	"support our mission",
}

var multiLocationPhrases = []string{
	"our locations",
	"multiple locations",
	"all locations",
	"find a location",
	"our campuses",
	"our facilities",
}

var donateHrefRe = regexp.MustCompile(`(?i)href=["']([^"']*(?:donat|give|giving|support-us)[^"']*)["']`)

// findDonationLink scans hrefs for a donation path and resolves it against
// the page URL when relative.
func findDonationLink(html, pageURL string) string {
	m := donateHrefRe.FindStringSubmatch(html)
	if len(m) < 2 {
		return ""
	}
	href := m[1]
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base := strings.TrimSuffix(pageURL, "/")
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return base + href
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

var titleRe = regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`)

// extractTitle pulls the <title> from HTML.
func extractTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if len(m) > 1 {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}

// stripHTML removes scripts/styles/nav/footer, strips tags, decodes entities,
// and collapses whitespace.
func stripHTML(html string) string {
	for _, tag := range []string{"script", "style", "nav", "footer"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}

	tagRe := regexp.MustCompile(`<[^>]+>`)
	html = tagRe.ReplaceAllString(html, " ")

	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	html = r.Replace(html)

	spaceRe := regexp.MustCompile(`[ \t]+`)
	html = spaceRe.ReplaceAllString(html, " ")

	nlRe := regexp.MustCompile(`\n{3,}`)
	html = nlRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
