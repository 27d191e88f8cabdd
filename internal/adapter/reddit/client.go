// Package reddit reads recent posts from a subreddit through Reddit's public
// JSON listing.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/resilience"
)

const (
	defaultBaseURL = "https://www.reddit.com"
	userAgent      = "aura-agent/1.0 (incident monitor)"
	excerptLen     = 200
)

// Client implements scout.SubredditReader.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a Reddit listing client.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
	}
}

// NewPosts returns the newest posts in subreddit, newest first.
func (c *Client) NewPosts(ctx context.Context, subreddit string, limit int) ([]domain.Evidence, error) {
	subreddit = strings.TrimPrefix(strings.TrimSpace(subreddit), "r/")
	if subreddit == "" {
		return nil, fmt.Errorf("subreddit name is empty")
	}

	u := fmt.Sprintf("%s/r/%s/new.json?%s", c.baseURL, url.PathEscape(subreddit),
		url.Values{"limit": {strconv.Itoa(max(limit, 1))}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reddit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		apiErr := fmt.Errorf("reddit error: status %d: %s", resp.StatusCode, body)
		if rl := resilience.FromResponse(resp, time.Now(), apiErr); rl != nil {
			return nil, rl
		}
		return nil, apiErr
	}

	var decoded listing
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	source := fmt.Sprintf("Reddit (r/%s)", subreddit)
	out := make([]domain.Evidence, 0, len(decoded.Data.Children))
	for _, child := range decoded.Data.Children {
		p := child.Data
		link := defaultBaseURL + p.Permalink
		out = append(out, domain.Evidence{
			Source:    source,
			Content:   fmt.Sprintf("%s - %s", p.Title, excerpt(p.Selftext)),
			Timestamp: time.Unix(int64(p.CreatedUTC), 0).UTC().Format(time.RFC3339),
			Citations: []domain.Citation{{Title: p.Title, URL: link}},
		})
	}
	return out, nil
}

func excerpt(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= excerptLen {
		return string(r)
	}
	return string(r[:excerptLen]) + "..."
}

type listing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title      string  `json:"title"`
				Selftext   string  `json:"selftext"`
				Permalink  string  `json:"permalink"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}
