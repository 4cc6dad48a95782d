package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/domain"
)

const (
	DefaultPerPage = 50
	MaxPerPage     = 500
)

type urlRow struct {
	ID        int64  `db:"id"`
	URL       string `db:"url"`
	Community string `db:"community"`
	PostID    string `db:"post_id"`
	PostDate  int64  `db:"post_date"`
	ScrapedAt int64  `db:"scraped_at"`
}

func (r urlRow) record() domain.URLRecord {
	return domain.URLRecord{
		ID:        r.ID,
		URL:       r.URL,
		Community: r.Community,
		PostID:    r.PostID,
		PostDate:  unixTime(r.PostDate),
		ScrapedAt: unixTime(r.ScrapedAt),
	}
}

const urlColumns = `id, url, community, post_id, post_date, scraped_at`

// Insert records one (url, community, post_id) triple. A triple that is
// already stored is reported as Duplicate together with the stored row.
func (s *Store) Insert(ctx context.Context, rec domain.URLRecord) (domain.InsertResult, error) {
	if rec.ScrapedAt.IsZero() {
		rec.ScrapedAt = s.now()
	}
	rec.PostDate = rec.PostDate.UTC().Truncate(time.Second)
	rec.ScrapedAt = rec.ScrapedAt.UTC().Truncate(time.Second)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO urls (url, community, post_id, post_date, scraped_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (url, community, post_id) DO NOTHING`,
		rec.URL, rec.Community, rec.PostID, rec.PostDate.Unix(), rec.ScrapedAt.Unix())
	if err != nil {
		return domain.InsertResult{}, fmt.Errorf("insert url %q for %s/%s: %w", rec.URL, rec.Community, rec.PostID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.InsertResult{}, fmt.Errorf("insert url rows affected: %w", err)
	}

	if n == 1 {
		if id, idErr := res.LastInsertId(); idErr == nil {
			rec.ID = id
		}
		return domain.InsertResult{Outcome: domain.Inserted, Record: rec}, nil
	}

	var row urlRow
	err = s.db.GetContext(ctx, &row,
		`SELECT `+urlColumns+` FROM urls WHERE url = ? AND community = ? AND post_id = ?`,
		rec.URL, rec.Community, rec.PostID)
	if err != nil {
		return domain.InsertResult{}, fmt.Errorf("load existing url %q: %w", rec.URL, err)
	}
	return domain.InsertResult{Outcome: domain.Duplicate, Record: row.record()}, nil
}

// Get loads a record by id.
func (s *Store) Get(ctx context.Context, id int64) (domain.URLRecord, error) {
	var row urlRow
	err := s.db.GetContext(ctx, &row, `SELECT `+urlColumns+` FROM urls WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.URLRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.URLRecord{}, fmt.Errorf("get url %d: %w", id, err)
	}
	return row.record(), nil
}

// ListQuery filters and paginates the url listing. Page is 1-based.
type ListQuery struct {
	Page      int
	PerPage   int
	Community string
	// Search is a case-insensitive substring matched against url and post id.
	Search string
}

type ListResult struct {
	Records []domain.URLRecord `json:"urls"`
	Page    int                `json:"page"`
	PerPage int                `json:"per_page"`
	Total   int64              `json:"total"`
	Pages   int                `json:"pages"`
}

// List returns one page of records, newest post first.
func (s *Store) List(ctx context.Context, q ListQuery) (ListResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}

	var (
		conds []string
		args  []any
	)
	if q.Community != "" {
		conds = append(conds, "community = ?")
		args = append(args, q.Community)
	}
	if q.Search != "" {
		pattern := "%" + escapeLike(q.Search) + "%"
		conds = append(conds, `(url LIKE ? ESCAPE '\' OR post_id LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	res := ListResult{Page: q.Page, PerPage: q.PerPage, Records: []domain.URLRecord{}}
	if err := s.db.GetContext(ctx, &res.Total, `SELECT COUNT(*) FROM urls`+where, args...); err != nil {
		return ListResult{}, fmt.Errorf("count urls: %w", err)
	}
	res.Pages = int((res.Total + int64(q.PerPage) - 1) / int64(q.PerPage))
	if res.Pages < 1 {
		res.Pages = 1
	}
	if res.Total == 0 {
		return res, nil
	}

	var rows []urlRow
	query := `SELECT ` + urlColumns + ` FROM urls` + where + ` ORDER BY post_date DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, q.PerPage, (q.Page-1)*q.PerPage)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return ListResult{}, fmt.Errorf("list urls: %w", err)
	}
	for _, r := range rows {
		res.Records = append(res.Records, r.record())
	}
	return res, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Summary holds the global aggregate counts. Oldest and Newest are nil on
// an empty store.
type Summary struct {
	TotalURLs   int64      `json:"total_urls"`
	Communities int64      `json:"subreddit_count"`
	Oldest      *time.Time `json:"earliest_post"`
	Newest      *time.Time `json:"latest_post"`
}

func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var row struct {
		Total       int64         `db:"total"`
		Communities int64         `db:"communities"`
		Oldest      sql.NullInt64 `db:"oldest"`
		Newest      sql.NullInt64 `db:"newest"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS total,
		       COUNT(DISTINCT community) AS communities,
		       MIN(post_date) AS oldest,
		       MAX(post_date) AS newest
		FROM urls`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize urls: %w", err)
	}

	sum := Summary{TotalURLs: row.Total, Communities: row.Communities}
	if row.Oldest.Valid {
		t := unixTime(row.Oldest.Int64)
		sum.Oldest = &t
	}
	if row.Newest.Valid {
		t := unixTime(row.Newest.Int64)
		sum.Newest = &t
	}
	return sum, nil
}

type CommunityCount struct {
	Community string `db:"community" json:"subreddit"`
	Count     int64  `db:"count" json:"count"`
}

// CommunityCounts returns the number of stored urls per community, largest first.
func (s *Store) CommunityCounts(ctx context.Context) ([]CommunityCount, error) {
	counts := []CommunityCount{}
	err := s.db.SelectContext(ctx, &counts, `
		SELECT community, COUNT(*) AS count
		FROM urls
		GROUP BY community
		ORDER BY count DESC, community ASC`)
	if err != nil {
		return nil, fmt.Errorf("count urls per community: %w", err)
	}
	return counts, nil
}

// UpdateURL replaces the url string of one record.
func (s *Store) UpdateURL(ctx context.Context, id int64, newURL string) (domain.URLRecord, error) {
	newURL = strings.TrimSpace(newURL)
	if newURL == "" {
		return domain.URLRecord{}, fmt.Errorf("update url %d: empty url", id)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.URLRecord{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var row urlRow
	err = tx.GetContext(ctx, &row, `SELECT `+urlColumns+` FROM urls WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.URLRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.URLRecord{}, fmt.Errorf("load url %d: %w", id, err)
	}
	if row.URL == newURL {
		return row.record(), nil
	}

	var clash int
	err = tx.GetContext(ctx, &clash,
		`SELECT COUNT(*) FROM urls WHERE url = ? AND community = ? AND post_id = ? AND id <> ?`,
		newURL, row.Community, row.PostID, id)
	if err != nil {
		return domain.URLRecord{}, fmt.Errorf("check url conflict: %w", err)
	}
	if clash > 0 {
		return domain.URLRecord{}, ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `UPDATE urls SET url = ? WHERE id = ?`, newURL, id); err != nil {
		return domain.URLRecord{}, fmt.Errorf("update url %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.URLRecord{}, fmt.Errorf("commit update: %w", err)
	}

	row.URL = newURL
	return row.record(), nil
}

// Delete removes one record.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM urls WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete url %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete url rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
