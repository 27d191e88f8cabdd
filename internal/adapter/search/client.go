// Package search runs web searches through the Google Custom Search JSON API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/resilience"
)

const (
	defaultBaseURL = "https://www.googleapis.com/customsearch/v1"
	sourceName     = "Google Search"
	maxResults     = 10
)

// Client implements scout.Searcher.
type Client struct {
	apiKey     string
	cx         string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a Custom Search client for the engine cx.
func NewClient(apiKey, cx string, timeout time.Duration) *Client {
	return &Client{
		apiKey:     apiKey,
		cx:         cx,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
	}
}

// Search returns up to limit results for query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.Evidence, error) {
	limit = min(max(limit, 1), maxResults)
	params := url.Values{
		"key": {c.apiKey},
		"cx":  {c.cx},
		"q":   {query},
		"num": {strconv.Itoa(limit)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		apiErr := fmt.Errorf("search API error: status %d: %s", resp.StatusCode, body)
		if rl := resilience.FromResponse(resp, time.Now(), apiErr); rl != nil {
			return nil, rl
		}
		// Daily quota exhaustion comes back as 403 with a quota message.
		return nil, resilience.FromMessage(apiErr)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]domain.Evidence, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		out = append(out, domain.Evidence{
			Source:    sourceName,
			Query:     query,
			Content:   fmt.Sprintf("%s: %s", item.Title, item.Snippet),
			Citations: []domain.Citation{{Title: item.Title, URL: item.Link}},
		})
	}
	return out, nil
}

type response struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}
