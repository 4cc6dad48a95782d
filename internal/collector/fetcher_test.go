package collector_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/collector"
	"github.com/qepting91/reddit-link-harvester/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource answers calls from a fixed script of results.
type scriptedSource struct {
	mu      sync.Mutex
	results []scriptedResult
	calls   []string
}

type scriptedResult struct {
	page domain.Page
	err  error
}

func (s *scriptedSource) Listing(_ context.Context, community string, ep domain.Endpoint, after string, limit int) (domain.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, community+"|"+ep.String()+"|"+after)
	if len(s.results) == 0 {
		return domain.Page{}, nil
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r.page, r.err
}

func TestFetcherRetriesRateLimitUntilSuccess(t *testing.T) {
	want := domain.Page{Items: []domain.Post{{ID: "a"}}, After: "t3_a"}
	src := &scriptedSource{results: []scriptedResult{
		{err: domain.ErrRateLimited},
		{err: domain.ErrRateLimited},
		{err: domain.ErrRateLimited},
		{page: want},
	}}

	var slept []time.Duration
	f := collector.NewFetcher(src,
		collector.WithCooldown(time.Minute),
		collector.WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
	)

	var attempts []int
	page, err := f.Fetch(context.Background(), collector.Request{
		Community:   "golang",
		Endpoint:    collector.Newest,
		After:       "t3_prev",
		OnRateLimit: func(n int) { attempts = append(attempts, n) },
	})
	require.NoError(t, err)
	assert.Equal(t, want, page)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute, time.Minute}, slept)
	assert.Equal(t, []int{1, 2, 3}, attempts)

	// the same page is requested every time
	require.Len(t, src.calls, 4)
	for _, c := range src.calls {
		assert.Equal(t, "golang|new|t3_prev", c)
	}
}

func TestFetcherTerminalErrorTruncates(t *testing.T) {
	boom := errors.New("connection reset")
	src := &scriptedSource{results: []scriptedResult{{err: boom}}}
	f := collector.NewFetcher(src)

	page, err := f.Fetch(context.Background(), collector.Request{Community: "golang", Endpoint: collector.Hot})
	require.Error(t, err)

	var fe *collector.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "golang", fe.Community)
	assert.Equal(t, collector.Hot, fe.Endpoint)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.After)
}

func TestFetcherEmptyPageEndsPagination(t *testing.T) {
	src := &scriptedSource{results: []scriptedResult{{page: domain.Page{After: "t3_dangling"}}}}
	f := collector.NewFetcher(src)

	page, err := f.Fetch(context.Background(), collector.Request{Community: "golang", Endpoint: collector.Newest})
	require.NoError(t, err)
	assert.Empty(t, page.After)
}

func TestFetcherCancelledDuringCooldown(t *testing.T) {
	src := &scriptedSource{results: []scriptedResult{{err: domain.ErrRateLimited}}}
	ctx, cancel := context.WithCancel(context.Background())

	f := collector.NewFetcher(src, collector.WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := f.Fetch(ctx, collector.Request{Community: "golang", Endpoint: collector.Newest})
	assert.ErrorIs(t, err, context.Canceled)

	var fe *collector.FetchError
	assert.False(t, errors.As(err, &fe))
}

func TestFetcherPageSizeOverride(t *testing.T) {
	var gotLimit int
	src := sourceFunc(func(_ context.Context, _ string, _ domain.Endpoint, _ string, limit int) (domain.Page, error) {
		gotLimit = limit
		return domain.Page{}, nil
	})

	f := collector.NewFetcher(src, collector.WithPageSize(50))
	_, err := f.Fetch(context.Background(), collector.Request{Community: "golang", Endpoint: collector.Newest})
	require.NoError(t, err)
	assert.Equal(t, 50, gotLimit)

	_, err = f.Fetch(context.Background(), collector.Request{Community: "golang", Endpoint: collector.Newest, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, gotLimit)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, collector.SleepContext(context.Background(), 0))
	assert.NoError(t, collector.SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, collector.SleepContext(ctx, time.Hour), context.Canceled)
}

type sourceFunc func(ctx context.Context, community string, ep domain.Endpoint, after string, limit int) (domain.Page, error)

func (f sourceFunc) Listing(ctx context.Context, community string, ep domain.Endpoint, after string, limit int) (domain.Page, error) {
	return f(ctx, community, ep, after, limit)
}
