// Package scout turns an incident context into search queries and gathers
// evidence for them from the web, Reddit and news feeds.
package scout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Mathew005/aura-agent/internal/resilience"
)

// QueriesPerStrategy is the number of queries every strategy returns: one
// each for social media, community forums and news.
const QueriesPerStrategy = 3

// TemplateStrategist builds queries from fixed templates.
type TemplateStrategist struct{}

// Strategy returns site-scoped social and community queries plus a news query.
func (TemplateStrategist) Strategy(_ context.Context, incidentContext string) []string {
	return []string{
		"site:twitter.com " + incidentContext,
		"site:reddit.com " + incidentContext,
		incidentContext + " news updates",
	}
}

// JSONModel completes a prompt and decodes the model's JSON answer into out.
type JSONModel interface {
	CompleteJSON(ctx context.Context, prompt string, out any) error
}

// ModelStrategist asks a language model for targeted queries and falls back
// to the templates when the model fails or answers with the wrong shape.
type ModelStrategist struct {
	model    JSONModel
	caller   *resilience.Caller
	fallback TemplateStrategist
	logger   *slog.Logger
}

// NewModelStrategist creates a strategist backed by model.
func NewModelStrategist(model JSONModel, caller *resilience.Caller, logger *slog.Logger) *ModelStrategist {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if caller == nil {
		caller = resilience.New(resilience.WithLogger(logger))
	}
	return &ModelStrategist{model: model, caller: caller, logger: logger}
}

// Strategy implements the pipeline's strategist contract.
func (s *ModelStrategist) Strategy(ctx context.Context, incidentContext string) []string {
	queries, err := resilience.Do(ctx, s.caller, "scout_strategy", func(ctx context.Context) ([]string, error) {
		var out strategyAnswer
		if err := s.model.CompleteJSON(ctx, strategyPrompt(incidentContext), &out); err != nil {
			return nil, err
		}
		return out.Queries, nil
	})
	if err != nil {
		s.logger.Warn("strategy generation failed, using templates", "error", err)
		return s.fallback.Strategy(ctx, incidentContext)
	}

	cleaned := make([]string, 0, QueriesPerStrategy)
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			cleaned = append(cleaned, q)
		}
	}
	if len(cleaned) < QueriesPerStrategy {
		s.logger.Warn("strategy too short, using templates", "queries", len(cleaned))
		return s.fallback.Strategy(ctx, incidentContext)
	}
	return cleaned[:QueriesPerStrategy]
}

// strategyAnswer is the object the model answers with. JSON mode only
// allows an object at the top level.
type strategyAnswer struct {
	Queries []string `json:"queries"`
}

func strategyPrompt(incidentContext string) string {
	return fmt.Sprintf("You plan searches for live, on-the-ground updates about an emergency.\n"+
		"Context: %q\n\n"+
		"Write exactly %d search queries:\n"+
		"1. Recent Twitter posts, scoped with site:twitter.com and words like \"latest\" or \"now\".\n"+
		"2. Reddit: a local subreddit as \"r/<name> <keywords>\" if you know one, otherwise site:reddit.com.\n"+
		"3. Local news or official alerts with words like \"today\" or \"live\".\n\n"+
		"Answer with JSON only: {\"queries\": [\"...\", \"...\", \"...\"]}", incidentContext, QueriesPerStrategy)
}
