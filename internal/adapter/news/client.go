// Package news reads headlines from Google News RSS search feeds.
package news

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/resilience"
	"github.com/mmcdole/gofeed"
)

const (
	defaultBaseURL = "https://news.google.com/rss/search"
	sourceName     = "Google News"
)

// Client implements scout.NewsSearcher.
type Client struct {
	parser  *gofeed.Parser
	baseURL string
}

// NewClient creates a news search client.
func NewClient(timeout time.Duration) *Client {
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: timeout}
	p.UserAgent = "aura-agent/1.0"
	return &Client{parser: p, baseURL: defaultBaseURL}
}

// SearchNews returns up to limit headlines matching query.
func (c *Client) SearchNews(ctx context.Context, query string, limit int) ([]domain.Evidence, error) {
	params := url.Values{
		"q":    {query},
		"hl":   {"en-US"},
		"gl":   {"US"},
		"ceid": {"US:en"},
	}
	feed, err := c.parser.ParseURLWithContext(c.baseURL+"?"+params.Encode(), ctx)
	if err != nil {
		return nil, classify(err)
	}

	items := feed.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]domain.Evidence, 0, len(items))
	for _, it := range items {
		out = append(out, domain.Evidence{
			Source:    sourceName,
			Query:     query,
			Content:   it.Title,
			Timestamp: it.Published,
			Citations: []domain.Citation{{Title: it.Title, URL: it.Link}},
		})
	}
	return out, nil
}

func classify(err error) error {
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return &resilience.RateLimitError{Err: fmt.Errorf("news feed: %w", err)}
	}
	return fmt.Errorf("news feed: %w", err)
}
