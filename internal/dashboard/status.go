package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/scrape"
)

const DefaultLogSize = 100

type LogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Status is the scrape progress shown by /api/scrape/status.
type Status struct {
	Running        bool        `json:"running"`
	RunID          string      `json:"run_id,omitempty"`
	Mode           scrape.Mode `json:"mode,omitempty"`
	Progress       int         `json:"progress"`
	Total          int         `json:"total"`
	Completed      int         `json:"completed"`
	Current        string      `json:"current_subreddit,omitempty"`
	PostsProcessed int         `json:"posts_processed"`
	NewURLs        int         `json:"new_urls"`
	Duplicates     int         `json:"duplicates"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	FinishedAt     *time.Time  `json:"finished_at,omitempty"`
	Error          string      `json:"error,omitempty"`
	Log            []LogEntry  `json:"log"`
}

// StatusTracker folds progress events into a Status snapshot.
type StatusTracker struct {
	mu      sync.RWMutex
	st      Status
	logSize int
}

func NewStatusTracker(logSize int) *StatusTracker {
	if logSize < 1 {
		logSize = DefaultLogSize
	}
	return &StatusTracker{logSize: logSize}
}

// Follow applies events from bus until ctx is done or the bus closes.
func (t *StatusTracker) Follow(ctx context.Context, bus *scrape.Bus) {
	events, cancel := bus.Subscribe(256)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			t.Apply(ev)
		}
	}
}

func (t *StatusTracker) Apply(ev scrape.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Stragglers from an earlier run are ignored.
	if ev.Kind != scrape.EventRunStarted && ev.RunID != t.st.RunID {
		return
	}

	switch ev.Kind {
	case scrape.EventRunStarted:
		at := ev.At
		t.st = Status{
			Running:   true,
			RunID:     ev.RunID,
			Mode:      ev.Mode,
			Total:     ev.Total,
			StartedAt: &at,
		}
		t.logf(ev.At, "Started %s run for %d communities", ev.Mode, ev.Total)
	case scrape.EventCommunityStarted:
		t.st.Current = ev.Community
		t.logf(ev.At, "Scraping r/%s", ev.Community)
	case scrape.EventPageFetched:
		t.logf(ev.At, "r/%s %s page %d: %d posts", ev.Community, ev.Endpoint, ev.Page, ev.Items)
	case scrape.EventRateLimited:
		t.logf(ev.At, "Rate limited on r/%s %s (attempt %d), backing off", ev.Community, ev.Endpoint, ev.Attempt)
	case scrape.EventEndpointCompleted:
		if ev.Err != "" {
			t.logf(ev.At, "r/%s %s failed: %s", ev.Community, ev.Endpoint, ev.Err)
		}
	case scrape.EventCommunityCompleted, scrape.EventCommunityFailed:
		t.st.Completed++
		if ev.Stats != nil {
			t.st.PostsProcessed += ev.Stats.PostsProcessed
			t.st.NewURLs += ev.Stats.NewURLs
			t.st.Duplicates += ev.Stats.Duplicates
		}
		if t.st.Total > 0 {
			t.st.Progress = t.st.Completed * 100 / t.st.Total
		}
		if ev.Kind == scrape.EventCommunityFailed {
			t.logf(ev.At, "r/%s failed: %s", ev.Community, ev.Err)
		} else if ev.Stats != nil {
			t.logf(ev.At, "r/%s done: %d new urls, %d duplicates", ev.Community, ev.Stats.NewURLs, ev.Stats.Duplicates)
		}
	case scrape.EventRunCompleted:
		at := ev.At
		t.st.Running = false
		t.st.Current = ""
		t.st.FinishedAt = &at
		t.st.Error = ev.Err
		if ev.Err == "" {
			t.st.Progress = 100
		}
		t.logf(ev.At, "Run finished: %d new urls", t.st.NewURLs)
	}
}

// Fail marks the current run as failed before any event was published,
// e.g. when the run was rejected.
func (t *StatusTracker) Fail(at time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.Running = false
	t.st.Error = err.Error()
	t.logf(at, "Run failed: %v", err)
}

func (t *StatusTracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := t.st
	st.Log = append([]LogEntry{}, t.st.Log...)
	return st
}

func (t *StatusTracker) logf(at time.Time, format string, args ...any) {
	t.st.Log = append(t.st.Log, LogEntry{At: at, Message: fmt.Sprintf(format, args...)})
	if over := len(t.st.Log) - t.logSize; over > 0 {
		t.st.Log = append(t.st.Log[:0:0], t.st.Log[over:]...)
	}
}
