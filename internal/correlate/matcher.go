package correlate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/resilience"
)

// DefaultMinSharedWords is the overlap needed for TokenOverlap to match.
const DefaultMinSharedWords = 2

// TokenOverlap matches summaries that share enough distinct words.
type TokenOverlap struct {
	MinShared int
}

// Same implements SemanticMatcher.
func (t TokenOverlap) Same(_ context.Context, existing, incoming string) bool {
	n := t.MinShared
	if n <= 0 {
		n = DefaultMinSharedWords
	}
	return domain.SharedWords(existing, incoming) >= n
}

// TextModel completes a prompt with free text.
type TextModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelMatcher asks a language model for a YES/NO judgment and falls back to
// token overlap when the model cannot answer.
type ModelMatcher struct {
	model    TextModel
	caller   *resilience.Caller
	fallback TokenOverlap
	logger   *slog.Logger
}

// NewModelMatcher creates a SemanticMatcher backed by model.
func NewModelMatcher(model TextModel, caller *resilience.Caller, logger *slog.Logger) *ModelMatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if caller == nil {
		caller = resilience.New(resilience.WithLogger(logger))
	}
	return &ModelMatcher{model: model, caller: caller, logger: logger}
}

// Same implements SemanticMatcher.
func (m *ModelMatcher) Same(ctx context.Context, existing, incoming string) bool {
	answer, err := resilience.Do(ctx, m.caller, "semantic_match", func(ctx context.Context) (string, error) {
		return m.model.Complete(ctx, matchPrompt(existing, incoming))
	})
	if err != nil {
		m.logger.Warn("semantic match failed, using token overlap", "error", err)
		return m.fallback.Same(ctx, existing, incoming)
	}
	return strings.Contains(strings.ToUpper(answer), "YES")
}

func matchPrompt(existing, incoming string) string {
	return fmt.Sprintf("Do these two emergency reports describe the same specific event?\n\n"+
		"Report 1: %q\nReport 2: %q\n\nAnswer with YES or NO only.", existing, incoming)
}
