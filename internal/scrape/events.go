package scrape

import (
	"sync"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/domain"
)

type EventKind string

const (
	EventRunStarted         EventKind = "run_started"
	EventCommunityStarted   EventKind = "community_started"
	EventPageFetched        EventKind = "page_fetched"
	EventRateLimited        EventKind = "rate_limited"
	EventEndpointCompleted  EventKind = "endpoint_completed"
	EventCommunityCompleted EventKind = "community_completed"
	EventCommunityFailed    EventKind = "community_failed"
	EventRunCompleted       EventKind = "run_completed"
)

// Event is one progress notification emitted while harvesting.
type Event struct {
	Kind      EventKind       `json:"kind"`
	RunID     string          `json:"run_id"`
	Mode      Mode            `json:"mode"`
	Community string          `json:"community,omitempty"`
	Endpoint  domain.Endpoint `json:"endpoint"`
	Page      int             `json:"page,omitempty"`
	Items     int             `json:"items,omitempty"`
	Attempt   int             `json:"attempt,omitempty"`

	// Total is the number of communities in the run (run_started only).
	Total int       `json:"total,omitempty"`
	Stats *Stats    `json:"stats,omitempty"`
	Err   string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

// Bus fans progress events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function that detaches it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close detaches and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
