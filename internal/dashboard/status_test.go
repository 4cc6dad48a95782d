package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/collector"
	"github.com/qepting91/reddit-link-harvester/internal/scrape"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTrackerFoldsRun(t *testing.T) {
	tr := NewStatusTracker(50)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ev := func(kind scrape.EventKind) scrape.Event {
		return scrape.Event{Kind: kind, RunID: "run-1", Mode: scrape.ModeBackfill, At: at}
	}

	start := ev(scrape.EventRunStarted)
	start.Total = 2
	tr.Apply(start)

	st := tr.Snapshot()
	assert.True(t, st.Running)
	assert.Equal(t, 2, st.Total)
	assert.Zero(t, st.Progress)

	c := ev(scrape.EventCommunityStarted)
	c.Community = "golang"
	tr.Apply(c)
	assert.Equal(t, "golang", tr.Snapshot().Current)

	p := ev(scrape.EventPageFetched)
	p.Community, p.Endpoint, p.Page, p.Items = "golang", collector.TopWeek, 1, 100
	tr.Apply(p)

	done := ev(scrape.EventCommunityCompleted)
	done.Community = "golang"
	done.Stats = &scrape.Stats{PostsProcessed: 10, NewURLs: 4, Duplicates: 1}
	tr.Apply(done)

	// an event from another run is ignored
	stray := done
	stray.RunID = "run-0"
	tr.Apply(stray)

	st = tr.Snapshot()
	assert.Equal(t, 50, st.Progress)
	assert.Equal(t, 4, st.NewURLs)
	assert.Equal(t, 1, st.Completed)

	failed := ev(scrape.EventCommunityFailed)
	failed.Community = "rust"
	failed.Err = "fetch failed"
	tr.Apply(failed)
	tr.Apply(ev(scrape.EventRunCompleted))

	st = tr.Snapshot()
	assert.False(t, st.Running)
	assert.Equal(t, 100, st.Progress)
	assert.Empty(t, st.Current)
	require.NotNil(t, st.FinishedAt)

	var messages []string
	for _, l := range st.Log {
		messages = append(messages, l.Message)
	}
	assert.Contains(t, messages, "r/golang top/week page 1: 100 posts")
	assert.Contains(t, messages, "r/rust failed: fetch failed")
}

func TestStatusTrackerBoundsLog(t *testing.T) {
	tr := NewStatusTracker(3)
	tr.Apply(scrape.Event{Kind: scrape.EventRunStarted, RunID: "r", Total: 1})
	for i := 1; i <= 5; i++ {
		tr.Apply(scrape.Event{Kind: scrape.EventPageFetched, RunID: "r", Community: "golang", Endpoint: collector.Newest, Page: i})
	}
	st := tr.Snapshot()
	require.Len(t, st.Log, 3)
	assert.Equal(t, "r/golang new page 5: 0 posts", st.Log[2].Message)
}

func TestStatusTrackerFollowsBus(t *testing.T) {
	bus := scrape.NewBus()
	tr := NewStatusTracker(10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		tr.Follow(ctx, bus)
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		bus.Publish(scrape.Event{Kind: scrape.EventRunStarted, RunID: "r", Total: 3})
		return tr.Snapshot().Running
	}, time.Second, 10*time.Millisecond)

	bus.Close()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("tracker did not stop after the bus closed")
	}
}

func TestStatusTrackerFail(t *testing.T) {
	tr := NewStatusTracker(10)
	tr.Fail(time.Now(), errors.New("boom"))
	st := tr.Snapshot()
	assert.False(t, st.Running)
	assert.Equal(t, "boom", st.Error)
}
