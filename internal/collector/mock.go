package collector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/qepting91/reddit-link-harvester/internal/domain"
)

// MockClient implements domain.Source but returns fake data.
// Every endpoint serves the same post ids so cross-endpoint merging is
// exercised; only the newest view is in creation order.
type MockClient struct {
	Pages   int
	Spacing time.Duration
	Now     func() time.Time
}

func NewMockClient() *MockClient {
	return &MockClient{Pages: 3, Spacing: 15 * time.Minute, Now: time.Now}
}

func (mc *MockClient) Listing(ctx context.Context, community string, ep domain.Endpoint, after string, limit int) (domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return domain.Page{}, err
	}

	page := 0
	if after != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(after, "mock_"))
		if err != nil {
			return domain.Page{}, fmt.Errorf("bad mock cursor %q", after)
		}
		page = n
	}
	if page >= mc.Pages {
		return domain.Page{}, nil
	}

	now := mc.Now().UTC()
	items := make([]domain.Post, 0, limit)
	for i := 0; i < limit; i++ {
		idx := page*limit + i
		if !TimeOrdered(ep) {
			idx = page*limit + (limit - 1 - i)
		}
		items = append(items, mockPost(community, idx, now.Add(-time.Duration(idx)*mc.Spacing)))
	}

	next := ""
	if page+1 < mc.Pages {
		next = fmt.Sprintf("mock_%d", page+1)
	}
	return domain.Page{Items: items, After: next}, nil
}

func mockPost(community string, idx int, created time.Time) domain.Post {
	p := domain.Post{
		ID:        fmt.Sprintf("mock_%s_%d", strings.ToLower(community), idx),
		CreatedAt: created,
		Title:     fmt.Sprintf("[%s] Simulated launch #%d: see https://example.com/%s/%d", community, idx, community, idx),
	}
	switch idx % 3 {
	case 0:
		p.Body = fmt.Sprintf("Writeup at [our blog](https://blog.example.org/posts/%d). Discussed on https://www.reddit.com/r/%s", idx, community)
		p.ExternalURL = fmt.Sprintf("https://www.reddit.com/r/%s/comments/mock%d/", community, idx)
	case 1:
		p.ExternalURL = fmt.Sprintf("https://github.com/mock/project-%d", idx)
	default:
		p.Body = "No links in this one, just text."
		p.ExternalURL = fmt.Sprintf("https://i.redd.it/mock%d.png", idx)
	}
	return p
}
