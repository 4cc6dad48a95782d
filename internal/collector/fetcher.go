package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/domain"
)

const (
	DefaultPageSize          = 100
	DefaultRateLimitCooldown = 60 * time.Second
)

// FetchError is a terminal failure for the current endpoint sweep.
type FetchError struct {
	Community string
	Endpoint  domain.Endpoint
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch r/%s/%s: %v", e.Community, e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Request identifies one page of a listing.
type Request struct {
	Community string
	Endpoint  domain.Endpoint
	After     string
	// PageSize overrides the fetcher default when positive.
	PageSize int
	// OnRateLimit is called before each cooldown.
	OnRateLimit func(attempt int)
}

// Fetcher retrieves listing pages and absorbs rate limiting. A rate-limited
// request is retried after a fixed cooldown for as long as it takes; any
// other failure ends the sweep of that endpoint.
type Fetcher struct {
	source   domain.Source
	pageSize int
	cooldown time.Duration
	sleep    func(context.Context, time.Duration) error
	logger   *slog.Logger
}

type FetcherOption func(*Fetcher)

func WithPageSize(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

func WithCooldown(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d >= 0 {
			f.cooldown = d
		}
	}
}

// WithSleep replaces the cooldown wait, for tests.
func WithSleep(fn func(context.Context, time.Duration) error) FetcherOption {
	return func(f *Fetcher) { f.sleep = fn }
}

func WithLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

func NewFetcher(src domain.Source, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		source:   src,
		pageSize: DefaultPageSize,
		cooldown: DefaultRateLimitCooldown,
		sleep:    SleepContext,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns one page. On a terminal failure it returns an empty page
// (no items, no cursor) together with a *FetchError so the caller can stop
// this endpoint and keep going. Only context cancellation is returned bare.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (domain.Page, error) {
	size := f.pageSize
	if req.PageSize > 0 {
		size = req.PageSize
	}

	for attempt := 1; ; attempt++ {
		page, err := f.source.Listing(ctx, req.Community, req.Endpoint, req.After, size)
		if err == nil {
			if len(page.Items) == 0 {
				page.After = ""
			}
			return page, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Page{}, ctxErr
		}
		if !errors.Is(err, domain.ErrRateLimited) {
			return domain.Page{}, &FetchError{Community: req.Community, Endpoint: req.Endpoint, Err: err}
		}

		f.logger.Warn("Rate limited, backing off",
			"community", req.Community,
			"endpoint", req.Endpoint.String(),
			"attempt", attempt,
			"cooldown", f.cooldown,
		)
		if req.OnRateLimit != nil {
			req.OnRateLimit(attempt)
		}
		if err := f.sleep(ctx, f.cooldown); err != nil {
			return domain.Page{}, err
		}
	}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
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
