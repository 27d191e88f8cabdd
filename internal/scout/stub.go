package scout

import (
	"context"
	"fmt"
	"strings"

	"github.com/Mathew005/aura-agent/internal/domain"
)

// StubGatherer returns one simulated live snippet per query without any
// network access. The platform is inferred from the query's site: scope.
type StubGatherer struct{}

// Gather implements the pipeline's gatherer contract.
func (StubGatherer) Gather(ctx context.Context, queries []string) ([]domain.Evidence, error) {
	out := make([]domain.Evidence, 0, len(queries))
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		keywords := Keywords(q)

		var platform, content string
		switch {
		case strings.Contains(q, "twitter"):
			platform = "Twitter"
			content = fmt.Sprintf("@TwitterUser: Can see the %s from my window! It's getting huge. #emergency", keywords)
		case strings.Contains(q, "reddit"):
			platform = "Reddit"
			content = fmt.Sprintf("r/%s: Anyone else hearing those sirens near downtown? %s confirmed.", keywords, keywords)
		default:
			platform = "Web"
			content = fmt.Sprintf("LIVE REPORT: Situation regarding '%s' is developing. Authorities are on scene. #alert", keywords)
		}

		out = append(out, domain.Evidence{
			Source:    platform,
			Query:     q,
			Content:   content,
			Timestamp: "Just now",
		})
	}
	return out, nil
}
