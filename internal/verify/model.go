package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/Mathew005/aura-agent/internal/domain"
)

// JSONModel completes a prompt and decodes the model's JSON answer into out.
type JSONModel interface {
	CompleteJSON(ctx context.Context, prompt string, out any) error
}

// ModelScorer asks a language model to grade a report against its evidence.
type ModelScorer struct {
	model JSONModel
}

// NewModelScorer creates a Scorer backed by model.
func NewModelScorer(model JSONModel) *ModelScorer {
	return &ModelScorer{model: model}
}

type scoreResponse struct {
	CredibilityScore  int    `json:"credibility_score"`
	VerificationNotes string `json:"verification_notes"`
}

// Score implements Scorer.
func (s *ModelScorer) Score(ctx context.Context, report domain.Report, digest string) (Assessment, error) {
	var resp scoreResponse
	if err := s.model.CompleteJSON(ctx, scorePrompt(report, digest), &resp); err != nil {
		return Assessment{}, fmt.Errorf("score report: %w", err)
	}
	return Assessment{Score: resp.CredibilityScore, Notes: resp.VerificationNotes}, nil
}

func scorePrompt(report domain.Report, digest string) string {
	var b strings.Builder
	b.WriteString("You verify emergency incident reports against external evidence.\n\n")
	b.WriteString("Report:\n")
	fmt.Fprintf(&b, "- Type: %s\n- Location: %s\n- Summary: %s\n\n", orUnknown(report.IncidentType), orUnknown(report.LocationText), report.Summary)
	b.WriteString("Evidence:\n")
	b.WriteString(digest)
	b.WriteString("\n\nRules:\n")
	b.WriteString("1. Evidence describing an event from months or years ago does not support the report; score 0-20.\n")
	b.WriteString("2. Undated evidence can never score above 20 on its own. Prefer signals such as \"today\", \"just now\", \"hours ago\" or current dates.\n")
	b.WriteString("3. Match type, location and details between the report and the evidence.\n")
	b.WriteString("4. Score bands: 0-20 none, contradicting or outdated; 21-50 weak; 51-79 moderate; 80-100 strong and recent.\n\n")
	b.WriteString(`Answer with JSON only: {"credibility_score": <int 0-100>, "verification_notes": "<short explanation>"}`)
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
