package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/domain"
)

// Checkpoint returns the last completed incremental pass for community.
// ok is false when the community was never checkpointed.
func (s *Store) Checkpoint(ctx context.Context, community string) (time.Time, bool, error) {
	var ts float64
	err := s.db.GetContext(ctx, &ts,
		`SELECT last_scrape_timestamp FROM checkpoints WHERE community = ?`, community)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read checkpoint for %s: %w", community, err)
	}
	return floatTime(ts), true, nil
}

// SetCheckpoint upserts the checkpoint for community.
func (s *Store) SetCheckpoint(ctx context.Context, community string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (community, last_scrape_timestamp)
		VALUES (?, ?)
		ON CONFLICT (community) DO UPDATE SET last_scrape_timestamp = excluded.last_scrape_timestamp`,
		community, float64(at.UnixNano())/1e9)
	if err != nil {
		return fmt.Errorf("write checkpoint for %s: %w", community, err)
	}
	return nil
}

// Checkpoints lists every stored checkpoint ordered by community.
func (s *Store) Checkpoints(ctx context.Context) ([]domain.Checkpoint, error) {
	var rows []struct {
		Community string  `db:"community"`
		TS        float64 `db:"last_scrape_timestamp"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT community, last_scrape_timestamp FROM checkpoints ORDER BY community`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	out := make([]domain.Checkpoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Checkpoint{Community: r.Community, LastScrapedAt: floatTime(r.TS)})
	}
	return out, nil
}

// floatTime converts fractional unix seconds, truncated to microseconds
// since a float64 cannot carry more precision at current epochs.
func floatTime(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	usec := int64(math.Round(frac * 1e6))
	return time.Unix(int64(sec), usec*int64(time.Microsecond)).UTC()
}
