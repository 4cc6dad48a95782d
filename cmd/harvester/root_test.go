package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/config"
	"github.com/qepting91/reddit-link-harvester/internal/scrape"
	"github.com/qepting91/reddit-link-harvester/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetsFromFlags(t *testing.T) {
	o := &rootOptions{communities: []string{"r/golang", "Golang", "rust"}, cfg: &config.Config{}}
	got, err := o.targets()
	require.NoError(t, err)
	assert.Equal(t, []string{"golang", "rust"}, got)
}

func TestTargetsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.csv")
	require.NoError(t, os.WriteFile(path, []byte("subreddit\nr/golang\nbad name!\ndevops\n"), 0o644))

	o := &rootOptions{communitiesFile: path, cfg: &config.Config{}}
	got, err := o.targets()
	require.NoError(t, err)
	assert.Equal(t, []string{"golang", "devops"}, got)
}

func TestTargetsMissingDefaultFile(t *testing.T) {
	cfg := &config.Config{}
	cfg.Input.CommunitiesFile = filepath.Join(t.TempDir(), "absent.csv")
	o := &rootOptions{cfg: cfg}

	_, err := o.targets()
	assert.ErrorIs(t, err, scrape.ErrNoCommunities)
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, scrape.Report{})
	assert.Empty(t, buf.String())

	printReport(&buf, scrape.Report{
		RunID: "run-1",
		Mode:  scrape.ModeIncremental,
		Results: []scrape.Result{
			{Community: "golang", Stats: scrape.Stats{PostsProcessed: 3, NewURLs: 2, Duplicates: 1}},
			{Community: "rust", Err: errors.New("fetch failed")},
		},
		Totals: scrape.Stats{PostsProcessed: 3, NewURLs: 2, Duplicates: 1},
	})
	out := buf.String()
	assert.Contains(t, out, "posts=3 new=2 dup=1")
	assert.Contains(t, out, "FAILED: fetch failed")
	assert.Contains(t, out, "incremental run run-1: posts=3 new=2 dup=1 failed=1")
}

func TestGatedSkipsWhileAnotherRunHoldsTheGate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := &scrape.Gate{}
	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	slow := gated(gate, logger, func() error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	})
	tick := gated(gate, logger, func() error {
		runs.Add(1)
		return nil
	})

	done := make(chan struct{})
	go func() {
		slow()
		close(done)
	}()
	<-started

	tick()
	assert.EqualValues(t, 1, runs.Load())

	close(release)
	<-done
	tick()
	assert.EqualValues(t, 2, runs.Load())
}

func TestStartScheduleRejectsBadSpec(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := startSchedule("every tuesday", logger, func() {})
	assert.Error(t, err)

	c, err := startSchedule("@daily", logger, func() {})
	require.NoError(t, err)
	stopSchedule(c, logger)
}

func TestPrintStats(t *testing.T) {
	oldest := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	newest := oldest.Add(48 * time.Hour)

	var buf bytes.Buffer
	printStats(&buf, storage.Summary{TotalURLs: 5, Communities: 2, Oldest: &oldest, Newest: &newest},
		[]storage.CommunityCount{{Community: "golang", Count: 3}, {Community: "rust", Count: 2}})

	out := buf.String()
	assert.Contains(t, out, "total links:  5")
	assert.Contains(t, out, "2026-01-02 03:04:05 .. 2026-01-04 03:04:05")
	assert.Contains(t, out, "r/golang")
}
