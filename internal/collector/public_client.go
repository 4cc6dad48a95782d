package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/domain"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL        = "https://www.reddit.com"
	DefaultRequestTimeout = 15 * time.Second
	maxListingBytes       = 8 << 20
)

// ErrMalformedListing is returned when a 2xx body is not a listing document.
var ErrMalformedListing = errors.New("malformed listing body")

// StatusError is a non-2xx answer other than a rate limit.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("listing status: %d", e.Code)
}

// HTTPDoer is the transport capability the public client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PublicClient reads the unauthenticated JSON listings.
type PublicClient struct {
	httpClient HTTPDoer
	baseURL    string
	userAgent  string
	timeout    time.Duration
}

type PublicOption func(*PublicClient)

// WithHTTPClient swaps the transport, mostly for tests.
func WithHTTPClient(c HTTPDoer) PublicOption {
	return func(pc *PublicClient) { pc.httpClient = c }
}

func WithBaseURL(base string) PublicOption {
	return func(pc *PublicClient) { pc.baseURL = strings.TrimRight(base, "/") }
}

func WithRequestTimeout(d time.Duration) PublicOption {
	return func(pc *PublicClient) {
		if d > 0 {
			pc.timeout = d
		}
	}
}

func NewPublicClient(userAgent string, opts ...PublicOption) (*PublicClient, error) {
	if strings.TrimSpace(userAgent) == "" {
		return nil, fmt.Errorf("user agent is required for public mode")
	}
	pc := &PublicClient{
		baseURL:   DefaultBaseURL,
		userAgent: userAgent,
		timeout:   DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(pc)
	}
	if pc.httpClient == nil {
		pc.httpClient = &http.Client{Timeout: pc.timeout}
	}
	return pc, nil
}

// Listing performs exactly one GET. Rate limiting surfaces as
// domain.ErrRateLimited, everything else non-2xx as *StatusError.
// Cancelling ctx does not abort a request already in flight; it ends on
// its own timeout.
func (pc *PublicClient) Listing(ctx context.Context, community string, ep domain.Endpoint, after string, limit int) (domain.Page, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pc.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pc.listingURL(community, ep, after, limit), nil)
	if err != nil {
		return domain.Page{}, fmt.Errorf("build listing request: %w", err)
	}
	req.Header.Set("User-Agent", pc.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := pc.httpClient.Do(req)
	if err != nil {
		return domain.Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.Page{}, domain.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Page{}, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return domain.Page{}, fmt.Errorf("read listing body: %w", err)
	}
	return decodeListing(body)
}

func (pc *PublicClient) listingURL(community string, ep domain.Endpoint, after string, limit int) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("raw_json", "1")
	if after != "" {
		q.Set("after", after)
	}
	if ep.TimeWindow != "" {
		q.Set("t", ep.TimeWindow)
	}
	return fmt.Sprintf("%s/r/%s/%s.json?%s", pc.baseURL, url.PathEscape(community), ep.Sort, q.Encode())
}

// decodeListing reads {data: {children: [{data: post}], after}}.
func decodeListing(body []byte) (domain.Page, error) {
	if !gjson.ValidBytes(body) {
		return domain.Page{}, ErrMalformedListing
	}
	data := gjson.GetBytes(body, "data")
	if !data.IsObject() {
		return domain.Page{}, fmt.Errorf("%w: missing data object", ErrMalformedListing)
	}

	var page domain.Page
	for _, child := range data.Get("children").Array() {
		d := child.Get("data")
		id := d.Get("id").String()
		if id == "" {
			continue
		}
		page.Items = append(page.Items, domain.Post{
			ID:          id,
			CreatedAt:   unixToTime(d.Get("created_utc").Float()),
			Title:       d.Get("title").String(),
			Body:        d.Get("selftext").String(),
			ExternalURL: d.Get("url").String(),
		})
	}
	if len(page.Items) > 0 {
		page.After = data.Get("after").String()
	}
	return page, nil
}

func unixToTime(sec float64) time.Time {
	whole := int64(sec)
	frac := int64((sec - float64(whole)) * float64(time.Second))
	return time.Unix(whole, frac).UTC()
}
