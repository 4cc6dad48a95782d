package scrape

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qepting91/reddit-link-harvester/internal/extract"
	"github.com/qepting91/reddit-link-harvester/internal/ingest"
	"github.com/qepting91/reddit-link-harvester/internal/storage"
)

// Gate admits one batch run at a time. Every trigger in a process (the
// dashboard, the scheduler, a startup run) shares one Gate.
type Gate struct {
	busy atomic.Bool
}

// Enter reports whether the caller may start a run. A true result must be
// paired with Leave.
func (g *Gate) Enter() bool { return g.busy.CompareAndSwap(false, true) }

func (g *Gate) Leave() { g.busy.Store(false) }

type run struct {
	id   string
	mode Mode
}

func (h *Harvester) newRun(mode Mode) run {
	return run{id: uuid.NewString(), mode: mode}
}

func (r run) event(kind EventKind, at time.Time) Event {
	return Event{Kind: kind, RunID: r.id, Mode: r.mode, At: at}
}

// Result is the outcome for one community of a batch run.
type Result struct {
	Community string `json:"subreddit"`
	Stats     Stats  `json:"stats"`
	Err       error  `json:"-"`
}

// Report aggregates a batch run. Results keep the input order.
type Report struct {
	RunID      string    `json:"run_id"`
	Mode       Mode      `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`
	Totals     Stats     `json:"totals"`

	// RulesVersion is the link extraction rule set the run used.
	RulesVersion int `json:"rules_version"`
}

// Failed lists the communities whose pass returned an error.
func (r Report) Failed() []string {
	var out []string
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Community)
		}
	}
	return out
}

// RunBackfill backfills every community over the last days days. A failing
// community is recorded in the report and does not stop the others; the
// returned error is only set for invalid input or cancellation.
func (h *Harvester) RunBackfill(ctx context.Context, communities []string, days int) (Report, error) {
	if days <= 0 {
		return Report{}, fmt.Errorf("%w: days must be positive, got %d", ErrInvalidWindow, days)
	}
	return h.runAll(ctx, ModeBackfill, communities, func(ctx context.Context, r run, c string) (Stats, error) {
		return h.backfill(ctx, r, c, Window{DaysBack: days})
	})
}

// RunIncremental runs an incremental pass for every community.
func (h *Harvester) RunIncremental(ctx context.Context, communities []string) (Report, error) {
	return h.runAll(ctx, ModeIncremental, communities, h.incremental)
}

type passFunc func(ctx context.Context, r run, community string) (Stats, error)

func (h *Harvester) runAll(ctx context.Context, mode Mode, communities []string, pass passFunc) (Report, error) {
	if len(communities) == 0 {
		return Report{}, ErrNoCommunities
	}
	names, err := ingest.NormalizeCommunities(communities)
	if err != nil {
		return Report{}, err
	}

	r := h.newRun(mode)
	rep := Report{
		RunID:        r.id,
		Mode:         mode,
		StartedAt:    h.now(),
		Results:      make([]Result, len(names)),
		RulesVersion: extract.RulesVersion,
	}
	ev := r.event(EventRunStarted, rep.StartedAt)
	ev.Total = len(names)
	h.publish(ev)
	h.logger.Info("Starting harvest",
		"run_id", r.id,
		"mode", mode,
		"communities", len(names),
		"rules_version", rep.RulesVersion,
	)

	workers := h.workers
	if workers > len(names) {
		workers = len(names)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rep.Results[i] = h.runOne(ctx, r, names[i], pass)
			}
		}()
	}

	dispatched := 0
dispatch:
	for i := range names {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()

	for i := dispatched; i < len(names); i++ {
		rep.Results[i] = Result{Community: names[i], Err: ctx.Err()}
	}
	for _, res := range rep.Results {
		rep.Totals.add(res.Stats)
	}
	rep.FinishedAt = h.now()

	done := r.event(EventRunCompleted, rep.FinishedAt)
	totals := rep.Totals
	done.Stats = &totals
	if err := ctx.Err(); err != nil {
		done.Err = err.Error()
	}
	h.publish(done)
	h.logger.Info("Harvest finished",
		"run_id", r.id,
		"mode", mode,
		"posts", rep.Totals.PostsProcessed,
		"new_urls", rep.Totals.NewURLs,
		"duplicates", rep.Totals.Duplicates,
		"failed", len(rep.Failed()),
	)
	return rep, ctx.Err()
}

func (h *Harvester) runOne(ctx context.Context, r run, community string, pass passFunc) Result {
	ev := r.event(EventCommunityStarted, h.now())
	ev.Community = community
	h.publish(ev)

	stats, err := pass(ctx, r, community)

	ev = r.event(EventCommunityCompleted, h.now())
	ev.Community = community
	ev.Stats = &stats
	if err != nil {
		ev.Kind = EventCommunityFailed
		ev.Err = err.Error()
		h.logger.Error("Harvest failed", "community", community, "mode", r.mode, "err", err)
	} else {
		h.logger.Info("Harvested community",
			"community", community,
			"mode", r.mode,
			"posts", stats.PostsProcessed,
			"new_urls", stats.NewURLs,
			"duplicates", stats.Duplicates,
		)
	}
	h.publish(ev)
	return Result{Community: community, Stats: stats, Err: err}
}

// ExportAll writes every stored link as CSV to path, or to the default
// export file when path is empty.
func (h *Harvester) ExportAll(ctx context.Context, path string) (int, error) {
	if path == "" {
		path = storage.DefaultExportFile
	}
	n, err := h.store.ExportFile(ctx, path)
	if err != nil {
		return n, err
	}
	h.logger.Info("Exported links", "path", path, "rows", n)
	return n, nil
}

func (h *Harvester) GlobalStats(ctx context.Context) (storage.Summary, error) {
	return h.store.Summary(ctx)
}
