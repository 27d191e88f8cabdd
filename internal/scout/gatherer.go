package scout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/resilience"
	"golang.org/x/time/rate"
)

const (
	DefaultResultsPerQuery = 3
	DefaultPostsPerQuery   = 5
)

// Searcher runs a general web search.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.Evidence, error)
}

// SubredditReader lists the newest posts of a subreddit.
type SubredditReader interface {
	NewPosts(ctx context.Context, subreddit string, limit int) ([]domain.Evidence, error)
}

// NewsSearcher searches news headlines.
type NewsSearcher interface {
	SearchNews(ctx context.Context, query string, limit int) ([]domain.Evidence, error)
}

// WebGatherer executes queries against live sources. Queries starting with
// "r/<name>" read that subreddit; all others run a web search supplemented
// by a news search with site: scopes removed. Individual source failures are
// logged and skipped.
type WebGatherer struct {
	search  Searcher
	reddit  SubredditReader
	news    NewsSearcher
	caller  *resilience.Caller
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewWebGatherer creates a gatherer. Any source may be nil. queriesPerSecond
// paces outgoing queries; zero or less disables pacing.
func NewWebGatherer(search Searcher, reddit SubredditReader, news NewsSearcher, caller *resilience.Caller, queriesPerSecond float64, logger *slog.Logger) *WebGatherer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if caller == nil {
		caller = resilience.New(resilience.WithLogger(logger))
	}
	limit := rate.Inf
	if queriesPerSecond > 0 {
		limit = rate.Limit(queriesPerSecond)
	}
	return &WebGatherer{
		search:  search,
		reddit:  reddit,
		news:    news,
		caller:  caller,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Gather runs every query in order and concatenates the evidence. It only
// fails when ctx ends.
func (g *WebGatherer) Gather(ctx context.Context, queries []string) ([]domain.Evidence, error) {
	var out []domain.Evidence
	for _, q := range queries {
		if err := g.limiter.Wait(ctx); err != nil {
			return out, fmt.Errorf("gather: %w", err)
		}

		if sub, ok := subreddit(q); ok {
			out = append(out, g.fetch(ctx, "reddit", q, func(ctx context.Context) ([]domain.Evidence, error) {
				if g.reddit == nil {
					return nil, nil
				}
				return g.reddit.NewPosts(ctx, sub, DefaultPostsPerQuery)
			})...)
		} else {
			out = append(out, g.fetch(ctx, "web_search", q, func(ctx context.Context) ([]domain.Evidence, error) {
				if g.search == nil {
					return nil, nil
				}
				return g.search.Search(ctx, q, DefaultResultsPerQuery)
			})...)

			newsQuery := Keywords(q)
			out = append(out, g.fetch(ctx, "news_search", newsQuery, func(ctx context.Context) ([]domain.Evidence, error) {
				if g.news == nil {
					return nil, nil
				}
				return g.news.SearchNews(ctx, newsQuery, DefaultResultsPerQuery)
			})...)
		}

		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("gather: %w", err)
		}
	}
	return out, nil
}

func (g *WebGatherer) fetch(ctx context.Context, operation, query string, op func(context.Context) ([]domain.Evidence, error)) []domain.Evidence {
	ev, err := resilience.Do(ctx, g.caller, operation, op)
	if err != nil {
		g.logger.Warn("evidence source failed", "operation", operation, "query", query, "error", err)
		return nil
	}
	for i := range ev {
		ev[i].Query = query
	}
	return ev
}

// subreddit extracts the subreddit name from an "r/<name> ..." query.
func subreddit(query string) (string, bool) {
	if !strings.HasPrefix(query, "r/") {
		return "", false
	}
	name, _, _ := strings.Cut(strings.TrimPrefix(query, "r/"), " ")
	return name, name != ""
}

// Keywords strips site: scopes from a query.
func Keywords(query string) string {
	fields := strings.Fields(query)
	kept := fields[:0]
	for _, f := range fields {
		if strings.HasPrefix(f, "site:") {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
