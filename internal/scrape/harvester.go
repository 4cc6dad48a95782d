// Package scrape runs backfill and incremental link harvests over a set of
// communities.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/collector"
	"github.com/qepting91/reddit-link-harvester/internal/domain"
	"github.com/qepting91/reddit-link-harvester/internal/extract"
	"github.com/qepting91/reddit-link-harvester/internal/storage"
	"golang.org/x/time/rate"
)

const (
	DefaultPageDelay     = 2 * time.Second
	DefaultEndpointDelay = 1 * time.Second
	DefaultMaxPages      = 10
	DefaultLookback      = 24 * time.Hour
)

var (
	ErrNoCommunities = errors.New("no communities given")
	ErrInvalidWindow = errors.New("backfill window needs either a positive day count or a start time")
	// ErrFetchFailed means nothing could be fetched for a community at all.
	ErrFetchFailed = errors.New("fetch failed")
)

type Mode string

const (
	ModeBackfill    Mode = "backfill"
	ModeIncremental Mode = "incremental"
)

// Store is the persistence the harvester needs. *storage.Store satisfies it.
type Store interface {
	Insert(ctx context.Context, rec domain.URLRecord) (domain.InsertResult, error)
	Checkpoint(ctx context.Context, community string) (time.Time, bool, error)
	SetCheckpoint(ctx context.Context, community string, at time.Time) error
	ExportFile(ctx context.Context, path string) (int, error)
	Summary(ctx context.Context) (storage.Summary, error)
}

// Window bounds a backfill, either DaysBack days before now or from Since.
type Window struct {
	DaysBack int
	Since    time.Time
}

func (w Window) cutoff(now time.Time) (time.Time, error) {
	switch {
	case !w.Since.IsZero() && w.DaysBack != 0:
		return time.Time{}, fmt.Errorf("%w: got both", ErrInvalidWindow)
	case !w.Since.IsZero():
		return w.Since, nil
	case w.DaysBack > 0:
		return now.AddDate(0, 0, -w.DaysBack), nil
	default:
		return time.Time{}, ErrInvalidWindow
	}
}

// Stats summarises one community pass.
type Stats struct {
	PostsProcessed int        `json:"posts_processed"`
	NewURLs        int        `json:"new_urls"`
	Duplicates     int        `json:"duplicates"`
	OldestPost     *time.Time `json:"oldest_post,omitempty"`
	NewestPost     *time.Time `json:"newest_post,omitempty"`
	// Since is the lower time bound the pass used.
	Since time.Time `json:"since"`
}

func (s *Stats) observe(t time.Time) {
	if s.OldestPost == nil || t.Before(*s.OldestPost) {
		o := t
		s.OldestPost = &o
	}
	if s.NewestPost == nil || t.After(*s.NewestPost) {
		n := t
		s.NewestPost = &n
	}
}

func (s *Stats) add(o Stats) {
	s.PostsProcessed += o.PostsProcessed
	s.NewURLs += o.NewURLs
	s.Duplicates += o.Duplicates
	if o.OldestPost != nil {
		s.observe(*o.OldestPost)
	}
	if o.NewestPost != nil {
		s.observe(*o.NewestPost)
	}
}

// Harvester sweeps listings, extracts external links and stores them.
type Harvester struct {
	fetcher       *collector.Fetcher
	store         Store
	normalizer    *extract.Normalizer
	pageDelay     time.Duration
	endpointDelay time.Duration
	maxPages      int
	lookback      time.Duration
	workers       int
	now           func() time.Time
	sleep         func(context.Context, time.Duration) error
	logger        *slog.Logger
	bus           *Bus
}

type Option func(*Harvester)

func WithNormalizer(n *extract.Normalizer) Option {
	return func(h *Harvester) {
		if n != nil {
			h.normalizer = n
		}
	}
}

// WithPageDelay sets the minimum spacing between page requests of one sweep.
func WithPageDelay(d time.Duration) Option {
	return func(h *Harvester) { h.pageDelay = d }
}

func WithEndpointDelay(d time.Duration) Option {
	return func(h *Harvester) { h.endpointDelay = d }
}

func WithMaxPages(n int) Option {
	return func(h *Harvester) {
		if n > 0 {
			h.maxPages = n
		}
	}
}

// WithLookback sets the lower bound used for a community that has no checkpoint.
func WithLookback(d time.Duration) Option {
	return func(h *Harvester) {
		if d > 0 {
			h.lookback = d
		}
	}
}

// WithWorkers sets how many communities are harvested concurrently.
func WithWorkers(n int) Option {
	return func(h *Harvester) {
		if n > 0 {
			h.workers = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Harvester) { h.now = now }
}

// WithSleep replaces the inter-endpoint wait, for tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(h *Harvester) { h.sleep = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Harvester) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithBus publishes progress events to b.
func WithBus(b *Bus) Option {
	return func(h *Harvester) { h.bus = b }
}

// New returns a Harvester. f may be nil when the harvester only exports
// and reports on stored links.
func New(f *collector.Fetcher, store Store, opts ...Option) *Harvester {
	h := &Harvester{
		fetcher:       f,
		store:         store,
		normalizer:    extract.New(extract.DefaultPlatformDomains),
		pageDelay:     DefaultPageDelay,
		endpointDelay: DefaultEndpointDelay,
		maxPages:      DefaultMaxPages,
		lookback:      DefaultLookback,
		workers:       1,
		now:           time.Now,
		sleep:         collector.SleepContext,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Backfill sweeps every endpoint of the full plan back to the window's
// cutoff. It never touches the checkpoint.
func (h *Harvester) Backfill(ctx context.Context, community string, w Window) (Stats, error) {
	return h.backfill(ctx, h.newRun(ModeBackfill), community, w)
}

// Incremental sweeps the newest endpoint back to the community checkpoint
// (or the lookback for a first run) and moves the checkpoint to now once
// everything fetched has been stored.
func (h *Harvester) Incremental(ctx context.Context, community string) (Stats, error) {
	return h.incremental(ctx, h.newRun(ModeIncremental), community)
}

func (h *Harvester) backfill(ctx context.Context, r run, community string, w Window) (Stats, error) {
	cutoff, err := w.cutoff(h.now())
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Since: cutoff}

	posts, err := h.collect(ctx, r, community, collector.FullPlan(), cutoff)
	if err != nil {
		return stats, err
	}
	if err := h.persist(ctx, community, posts, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (h *Harvester) incremental(ctx context.Context, r run, community string) (Stats, error) {
	since, ok, err := h.store.Checkpoint(ctx, community)
	if err != nil {
		return Stats{}, err
	}
	if !ok {
		since = h.now().Add(-h.lookback)
	}
	stats := Stats{Since: since}

	posts, err := h.collect(ctx, r, community, collector.IncrementalPlan(), since)
	if err != nil {
		return stats, err
	}
	if err := h.persist(ctx, community, posts, &stats); err != nil {
		return stats, err
	}
	if err := h.store.SetCheckpoint(ctx, community, h.now()); err != nil {
		return stats, err
	}
	return stats, nil
}

// collect sweeps plan in order and merges the results by post id, keeping
// the first observation of each id. Only when every endpoint failed on its
// first page is the community reported as ErrFetchFailed.
func (h *Harvester) collect(ctx context.Context, r run, community string, plan []domain.Endpoint, cutoff time.Time) ([]domain.Post, error) {
	var (
		merged  []domain.Post
		seen    = make(map[string]struct{})
		failed  int
		lastErr error
	)

	for i, ep := range plan {
		if i > 0 {
			if err := h.sleep(ctx, h.endpointDelay); err != nil {
				return nil, err
			}
		}

		posts, pages, err := h.sweep(ctx, r, community, ep, cutoff)
		var fe *collector.FetchError
		switch {
		case errors.As(err, &fe):
			failed++
			lastErr = err
			h.logger.Warn("Endpoint failed", "community", community, "endpoint", ep.String(), "err", err)
		case err != nil:
			return nil, err
		}

		kept := 0
		for _, p := range posts {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			merged = append(merged, p)
			kept++
		}

		ev := r.event(EventEndpointCompleted, h.now())
		ev.Community = community
		ev.Endpoint = ep
		ev.Page = pages
		ev.Items = kept
		if err != nil {
			ev.Err = err.Error()
		}
		h.publish(ev)
	}

	if failed == len(plan) && lastErr != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrFetchFailed, community, lastErr)
	}
	return merged, nil
}

// sweep pages through one endpoint. Items older than cutoff are dropped;
// on a time-ordered endpoint the first such item also ends the sweep.
// A failure after the first page truncates the sweep without error.
func (h *Harvester) sweep(ctx context.Context, r run, community string, ep domain.Endpoint, cutoff time.Time) ([]domain.Post, int, error) {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if h.pageDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(h.pageDelay), 1)
	}

	var (
		posts []domain.Post
		after string
		pages int
	)
	for pages < h.maxPages {
		if err := limiter.Wait(ctx); err != nil {
			return posts, pages, err
		}

		page, err := h.fetcher.Fetch(ctx, collector.Request{
			Community: community,
			Endpoint:  ep,
			After:     after,
			OnRateLimit: func(attempt int) {
				ev := r.event(EventRateLimited, h.now())
				ev.Community = community
				ev.Endpoint = ep
				ev.Page = pages + 1
				ev.Attempt = attempt
				h.publish(ev)
			},
		})
		if err != nil {
			var fe *collector.FetchError
			if errors.As(err, &fe) && pages > 0 {
				h.logger.Warn("Endpoint truncated",
					"community", community,
					"endpoint", ep.String(),
					"page", pages+1,
					"err", err,
				)
				return posts, pages, nil
			}
			return posts, pages, err
		}
		pages++

		ev := r.event(EventPageFetched, h.now())
		ev.Community = community
		ev.Endpoint = ep
		ev.Page = pages
		ev.Items = len(page.Items)
		h.publish(ev)

		reachedCutoff := false
		for _, p := range page.Items {
			if p.CreatedAt.Before(cutoff) {
				if collector.TimeOrdered(ep) {
					reachedCutoff = true
					break
				}
				continue
			}
			posts = append(posts, p)
		}

		if reachedCutoff || page.After == "" {
			break
		}
		after = page.After
	}
	return posts, pages, nil
}

// persist stores every external link of every post. The first storage
// failure aborts the pass.
func (h *Harvester) persist(ctx context.Context, community string, posts []domain.Post, stats *Stats) error {
	scrapedAt := h.now()
	for _, p := range posts {
		stats.PostsProcessed++
		stats.observe(p.CreatedAt)

		for _, u := range h.links(p) {
			res, err := h.store.Insert(ctx, domain.URLRecord{
				URL:       u,
				Community: community,
				PostID:    p.ID,
				PostDate:  p.CreatedAt,
				ScrapedAt: scrapedAt,
			})
			if err != nil {
				return fmt.Errorf("store links of post %s: %w", p.ID, err)
			}
			if res.Inserted() {
				stats.NewURLs++
			} else {
				stats.Duplicates++
			}
		}
	}
	return nil
}

// links returns the distinct external links of a post: those mentioned in
// its title and body plus its own link target.
func (h *Harvester) links(p domain.Post) []string {
	found := h.normalizer.Extract(p.Title + "\n" + p.Body)
	own, ok := h.normalizer.ExternalLink(p.ExternalURL)
	if !ok {
		return found
	}
	for _, u := range found {
		if u == own {
			return found
		}
	}
	return append(found, own)
}

func (h *Harvester) publish(e Event) {
	if h.bus != nil {
		h.bus.Publish(e)
	}
}
