package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ExportHeader is the first line of every export.
var ExportHeader = []string{"url", "post_date", "subreddit", "post_id"}

// ExportTimeLayout formats post dates in exports, always in UTC.
const ExportTimeLayout = "2006-01-02 15:04:05"

// Export streams every stored url as CSV, newest post first, and returns the
// number of data rows written.
func (s *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT `+urlColumns+` FROM urls ORDER BY post_date DESC, id DESC`)
	if err != nil {
		return 0, fmt.Errorf("query export rows: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("write export header: %w", err)
	}

	n := 0
	for rows.Next() {
		var row urlRow
		if err := rows.StructScan(&row); err != nil {
			return n, fmt.Errorf("scan export row: %w", err)
		}
		rec := row.record()
		err := cw.Write([]string{
			rec.URL,
			rec.PostDate.Format(ExportTimeLayout),
			rec.Community,
			rec.PostID,
		})
		if err != nil {
			return n, fmt.Errorf("write export row %d: %w", rec.ID, err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterate export rows: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("flush export: %w", err)
	}
	return n, nil
}

// ExportFile writes the export to path, replacing it only once the full
// export succeeded.
func (s *Store) ExportFile(ctx context.Context, path string) (int, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return 0, fmt.Errorf("failed to create export directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := s.Export(ctx, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close export file: %w", cerr)
	}
	if err != nil {
		return n, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, fmt.Errorf("failed to move export into place: %w", err)
	}
	return n, nil
}

// DefaultExportFile is used when no export path is given.
const DefaultExportFile = "reddit_urls.csv"
