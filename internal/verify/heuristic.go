package verify

import (
	"strings"

	"github.com/Mathew005/aura-agent/internal/domain"
)

const (
	trustedSourceBonus = 50
	socialSourceBonus  = 10
	coordinateBonus    = 20
	staleScoreCap      = 20
	maxCorroboration   = 40
)

var (
	trustedSourceMarkers = []string{"local_news", "news", "official", "gov"}
	socialSourceMarkers  = []string{"twitter", "reddit", "facebook", "social", "x.com"}

	spamMarkers  = []string{"fake", "movie set", "hoax", "staged"}
	staleMarkers = []string{"years ago", "months ago", "last year", "last month", "anniversary", "archive", "throwback"}
)

// Heuristic scores a report without a model. It credits the source, zeroes
// known misinformation, adds a bonus per corroborating evidence item, and
// rewards a resolved coordinate. Evidence with stale markers never
// corroborates; if every item is stale the score is capped.
func Heuristic(report domain.Report, evidence []domain.Evidence) Result {
	score := 0
	var notes []string

	switch classifySource(report.Source) {
	case sourceTrusted:
		score += trustedSourceBonus
		notes = append(notes, "Source is a trusted news outlet.")
	case sourceSocial:
		score += socialSourceBonus
		notes = append(notes, "Source is social media (unverified).")
	}

	text := strings.ToLower(report.Summary + " " + report.Text)
	if containsAny(text, spamMarkers) {
		return Result{
			Score: 0,
			Notes: strings.Join(append(notes, "Flagged as potential misinformation/spam."), "; "),
			Spam:  true,
		}
	}

	corroborating, stale := 0, 0
	for _, e := range evidence {
		content := strings.ToLower(e.Content + " " + e.Timestamp)
		if containsAny(content, staleMarkers) {
			stale++
			continue
		}
		if corroborates(report, e.Content) {
			corroborating++
		}
	}
	if corroborating > 0 {
		score += min(maxCorroboration, 20+10*(corroborating-1))
		notes = append(notes, "Found corroborating reports from other sources.")
	} else {
		notes = append(notes, "No corroborating evidence found.")
	}

	if report.Coordinate != nil {
		score += coordinateBonus
		notes = append(notes, "Location is valid and specific.")
	}

	if len(evidence) > 0 && stale == len(evidence) {
		score = min(score, staleScoreCap)
		notes = append(notes, "All evidence appears outdated.")
	}

	return Result{Score: min(score, 100), Notes: strings.Join(notes, "; ")}
}

type sourceClass int

const (
	sourceUnknown sourceClass = iota
	sourceTrusted
	sourceSocial
)

func classifySource(source string) sourceClass {
	s := strings.ToLower(source)
	switch {
	case containsAny(s, trustedSourceMarkers):
		return sourceTrusted
	case containsAny(s, socialSourceMarkers):
		return sourceSocial
	default:
		return sourceUnknown
	}
}

func corroborates(report domain.Report, content string) bool {
	lower := strings.ToLower(content)
	if t := strings.ToLower(strings.TrimSpace(report.IncidentType)); t != "" && strings.Contains(lower, t) {
		return true
	}
	return domain.SharedWords(report.Summary, content) >= 2
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
