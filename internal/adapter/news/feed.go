package news

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/jonboulle/clockwork"
)

// DefaultQueries seed the live feed.
var DefaultQueries = []string{
	"India disaster news breaking",
	"Mumbai fire update",
	"Delhi earthquake news",
	"Kerala flood warning",
	"Bangalore accident news",
	"cyclone warning India",
	"landslide Himachal Pradesh",
}

const (
	DefaultRefetchInterval = 5 * time.Minute
	feedSource             = "Google News RSS"
	perQueryLimit          = 5
)

// Searcher is the headline source behind a LiveFeed.
type Searcher interface {
	SearchNews(ctx context.Context, query string, limit int) ([]domain.Evidence, error)
}

// LiveFeed is a passive feed of real headlines. It caches what it has seen,
// refetches every interval, skips headlines already cached, and starts over
// from the oldest headline once the cache is exhausted and nothing new came in.
type LiveFeed struct {
	search   Searcher
	queries  []string
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger

	mu        sync.Mutex
	cache     []domain.Item
	seen      map[string]struct{}
	next      int
	lastFetch time.Time
}

// NewLiveFeed creates a feed over the given queries. Empty queries use
// DefaultQueries; a non-positive interval uses DefaultRefetchInterval.
func NewLiveFeed(search Searcher, queries []string, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *LiveFeed {
	if len(queries) == 0 {
		queries = DefaultQueries
	}
	if interval <= 0 {
		interval = DefaultRefetchInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LiveFeed{
		search:   search,
		queries:  queries,
		interval: interval,
		clock:    clock,
		logger:   logger,
		seen:     make(map[string]struct{}),
	}
}

// Next implements the pipeline feed contract.
func (f *LiveFeed) Next(ctx context.Context) (domain.Item, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var fetchErr error
	if len(f.cache) == 0 || f.clock.Since(f.lastFetch) > f.interval {
		_, fetchErr = f.refresh(ctx)
	}

	if f.next >= len(f.cache) {
		added, err := f.refresh(ctx)
		if err != nil {
			fetchErr = err
		}
		if added == 0 {
			f.next = 0
		}
	}
	if f.next >= len(f.cache) {
		return domain.Item{}, false, fetchErr
	}

	item := f.cache[f.next]
	f.next++
	item.ReceivedAt = f.clock.Now()
	return item, true, nil
}

// Len returns the number of cached headlines.
func (f *LiveFeed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cache)
}

// refresh runs every query and appends unseen headlines. It reports an error
// only when every query failed.
func (f *LiveFeed) refresh(ctx context.Context) (int, error) {
	f.lastFetch = f.clock.Now()

	added, failures := 0, 0
	var lastErr error
	for _, q := range f.queries {
		results, err := f.search.SearchNews(ctx, q, perQueryLimit)
		if err != nil {
			failures++
			lastErr = err
			f.logger.Warn("news query failed", "query", q, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		for _, r := range results {
			if _, dup := f.seen[r.Content]; dup || r.Content == "" {
				continue
			}
			f.seen[r.Content] = struct{}{}
			text := r.Content
			if r.Timestamp != "" {
				text = fmt.Sprintf("%s (%s)", r.Content, r.Timestamp)
			}
			f.cache = append(f.cache, domain.Item{Text: text, Source: feedSource})
			added++
		}
	}
	if added > 0 {
		f.logger.Info("news feed refreshed", "added", added, "cached", len(f.cache))
	}
	if failures == len(f.queries) && lastErr != nil {
		return added, fmt.Errorf("refresh news feed: %w", lastErr)
	}
	return added, nil
}
