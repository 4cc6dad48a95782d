package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/loganintech/go-reddit/v2/reddit"
	"github.com/qepting91/reddit-link-harvester/internal/domain"
	"golang.org/x/time/rate"
)

type APIClient struct {
	client  *reddit.Client
	limiter *rate.Limiter
}

func NewAPIClient(id, secret, user, pass, userAgent string) (*APIClient, error) {
	creds := reddit.Credentials{ID: id, Secret: secret, Username: user, Password: pass}

	client, err := reddit.NewClient(creds, reddit.WithUserAgent(userAgent))
	if err != nil {
		return nil, err
	}

	// API Rate Limit: ~60 reqs/min (safe buffer)
	limiter := rate.NewLimiter(rate.Every(1*time.Second), 1)

	return &APIClient{client: client, limiter: limiter}, nil
}

func (ac *APIClient) Listing(ctx context.Context, community string, ep domain.Endpoint, after string, limit int) (domain.Page, error) {
	if err := ac.limiter.Wait(ctx); err != nil {
		return domain.Page{}, err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultRequestTimeout)
	defer cancel()

	opts := reddit.ListOptions{Limit: limit, After: after}
	var (
		posts []*reddit.Post
		resp  *reddit.Response
		err   error
	)
	switch ep.Sort {
	case Newest.Sort:
		posts, resp, err = ac.client.Subreddit.NewPosts(ctx, community, &opts)
	case "top":
		posts, resp, err = ac.client.Subreddit.TopPosts(ctx, community, &reddit.ListPostOptions{ListOptions: opts, Time: ep.TimeWindow})
	case Hot.Sort:
		posts, resp, err = ac.client.Subreddit.HotPosts(ctx, community, &opts)
	case Rising.Sort:
		posts, resp, err = ac.client.Subreddit.RisingPosts(ctx, community, &opts)
	default:
		return domain.Page{}, fmt.Errorf("unsupported endpoint %q", ep)
	}
	if err != nil {
		var rle *reddit.RateLimitError
		if errors.As(err, &rle) {
			return domain.Page{}, domain.ErrRateLimited
		}
		if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusTooManyRequests {
			return domain.Page{}, domain.ErrRateLimited
		}
		return domain.Page{}, fmt.Errorf("authenticated api error: %w", err)
	}

	page := domain.Page{Items: make([]domain.Post, 0, len(posts))}
	for _, p := range posts {
		if p == nil {
			continue
		}
		page.Items = append(page.Items, toDomainPost(p))
	}
	if resp != nil && len(page.Items) > 0 {
		page.After = resp.After
	}
	return page, nil
}

func toDomainPost(p *reddit.Post) domain.Post {
	post := domain.Post{
		ID:          p.ID,
		Title:       p.Title,
		Body:        p.Body,
		ExternalURL: p.URL,
	}
	if p.Created != nil {
		post.CreatedAt = p.Created.Time.UTC()
	}
	return post
}
