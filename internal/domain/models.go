package domain

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited is returned by a Source when the remote listing service
// answered with a rate-limit signal (HTTP 429 or equivalent).
var ErrRateLimited = errors.New("rate limited by listing service")

// Post is one listing item. It only lives for a single orchestration pass.
type Post struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Title       string    `json:"title"`
	Body        string    `json:"body,omitempty"`
	ExternalURL string    `json:"url,omitempty"`
}

// Endpoint describes one sorted listing view of a community.
type Endpoint struct {
	Sort       string `json:"sort"`
	TimeWindow string `json:"t,omitempty"`
}

func (e Endpoint) String() string {
	if e.TimeWindow == "" {
		return e.Sort
	}
	return e.Sort + "/" + e.TimeWindow
}

// Page is a single page of a listing. An empty After means pagination ended.
type Page struct {
	Items []Post
	After string
}

// URLRecord is the persisted form of an extracted link.
type URLRecord struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Community string    `json:"subreddit"`
	PostID    string    `json:"post_id"`
	PostDate  time.Time `json:"post_date"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// Checkpoint marks the end of the last completed incremental pass for a community.
type Checkpoint struct {
	Community     string    `json:"community"`
	LastScrapedAt time.Time `json:"last_scrape"`
}

// InsertOutcome tags the result of a dedup insert.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota
	Duplicate
)

func (o InsertOutcome) String() string {
	if o == Duplicate {
		return "duplicate"
	}
	return "inserted"
}

// InsertResult is either Inserted(record) or DuplicateOf(existing record).
type InsertResult struct {
	Outcome InsertOutcome
	Record  URLRecord
}

func (r InsertResult) Inserted() bool { return r.Outcome == Inserted }

// Source retrieves one raw page of a community listing. Implementations
// report rate limiting with ErrRateLimited and never retry on their own.
type Source interface {
	Listing(ctx context.Context, community string, ep Endpoint, after string, limit int) (Page, error)
}
