package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// ErrInvalidCommunity is returned for names that cannot be a community.
var ErrInvalidCommunity = errors.New("invalid community name")

// Regex for valid community names
var communityRegex = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)

// NormalizeCommunity trims whitespace and a leading "r/" or "/r/" and
// validates what remains.
func NormalizeCommunity(name string) (string, error) {
	n := strings.TrimSpace(name)
	n = strings.TrimPrefix(n, "/")
	if len(n) >= 2 && strings.EqualFold(n[:2], "r/") {
		n = n[2:]
	}
	n = strings.TrimSuffix(n, "/")
	if !communityRegex.MatchString(n) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommunity, name)
	}
	return n, nil
}

// NormalizeCommunities validates every name and drops case-insensitive
// repeats, keeping the first spelling. The first invalid name is an error.
func NormalizeCommunities(names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		n, err := NormalizeCommunity(raw)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(n)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

// LoadCommunities reads community names from the first column of a CSV
// file. The header row is skipped and invalid rows are ignored.
func LoadCommunities(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open communities file: %w", err)
	}
	defer f.Close()
	return ReadCommunities(f)
}

func ReadCommunities(src io.Reader) ([]string, error) {
	r := csv.NewReader(stripBOM(src))
	r.FieldsPerRecord = -1

	seen := make(map[string]struct{})
	var communities []string
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				continue
			}
			return nil, fmt.Errorf("read communities: %w", err)
		}
		if line == 1 || len(record) == 0 {
			continue // Skip header
		}

		// Validation (Fail-Soft)
		name, err := NormalizeCommunity(record[0])
		if err != nil {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		communities = append(communities, name)
	}
	return communities, nil
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	rdr, _, err := br.ReadRune()
	if err != nil {
		return br
	}
	if rdr != '\uFEFF' {
		_ = br.UnreadRune()
	}
	return br
}
