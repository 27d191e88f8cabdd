// Package verify scores how credible a report is given the evidence gathered
// for it, and decides whether it may form or extend an incident.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/observability"
	"github.com/Mathew005/aura-agent/internal/resilience"
)

// DefaultThreshold is the minimum score for a report to count as verified.
const DefaultThreshold = 70

// Weather is the current conditions at a report's coordinate.
type Weather struct {
	Description  string
	TemperatureC float64
	WindSpeedMS  float64
	Alerts       []string
}

// WeatherLookup fetches current conditions. A nil result with a nil error
// means no data is available for the coordinate.
type WeatherLookup interface {
	Lookup(ctx context.Context, at domain.Coordinate) (*Weather, error)
}

// Assessment is a scorer's judgment of a report against its evidence digest.
type Assessment struct {
	Score int
	Notes string
}

// Scorer judges a report against an evidence digest.
type Scorer interface {
	Score(ctx context.Context, report domain.Report, digest string) (Assessment, error)
}

// Result is the outcome of verifying one report.
type Result struct {
	Score    int
	Verified bool
	Notes    string
	Sources  []domain.Citation
	Degraded bool // scored by the heuristic instead of the Scorer
	Spam     bool
}

// Verifier combines a Scorer with the deterministic heuristic fallback.
type Verifier struct {
	scorer    Scorer
	weather   WeatherLookup
	caller    *resilience.Caller
	threshold int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Verifier. A nil scorer means every report is scored by the
// heuristic; a nil weather lookup omits the weather block from the digest.
func New(scorer Scorer, weather WeatherLookup, caller *resilience.Caller, threshold int, logger *slog.Logger, metrics *observability.Metrics) *Verifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if caller == nil {
		caller = resilience.New(resilience.WithLogger(logger))
	}
	return &Verifier{
		scorer:    scorer,
		weather:   weather,
		caller:    caller,
		threshold: threshold,
		logger:    logger,
		metrics:   metrics,
	}
}

// Threshold returns the score a report needs to be verified.
func (v *Verifier) Threshold() int { return v.threshold }

// Verify scores report against evidence. It never fails: scorer errors that
// survive retries fall back to the heuristic.
func (v *Verifier) Verify(ctx context.Context, report domain.Report, evidence []domain.Evidence) Result {
	var res Result

	if v.scorer == nil {
		res = v.degraded(report, evidence)
	} else {
		digest := Digest(v.lookupWeather(ctx, report), evidence)
		a, err := resilience.Do(ctx, v.caller, "verify_score", func(ctx context.Context) (Assessment, error) {
			return v.scorer.Score(ctx, report, digest)
		})
		if err != nil {
			v.logger.Warn("scorer failed, using heuristic", "report_id", report.ID, "error", err)
			if v.metrics != nil {
				v.metrics.VerificationFallback.Inc()
			}
			res = v.degraded(report, evidence)
		} else {
			res = Result{Score: clamp(a.Score), Notes: a.Notes}
		}
	}

	res.Verified = res.Score >= v.threshold
	res.Sources = Citations(evidence)
	if v.metrics != nil {
		v.metrics.VerificationScore.Observe(float64(res.Score))
	}
	return res
}

func (v *Verifier) degraded(report domain.Report, evidence []domain.Evidence) Result {
	h := Heuristic(report, evidence)
	h.Degraded = true
	return h
}

func (v *Verifier) lookupWeather(ctx context.Context, report domain.Report) *Weather {
	if v.weather == nil || report.Coordinate == nil {
		return nil
	}
	w, err := resilience.Do(ctx, v.caller, "weather_lookup", func(ctx context.Context) (*Weather, error) {
		return v.weather.Lookup(ctx, *report.Coordinate)
	})
	if err != nil {
		v.logger.Warn("weather lookup failed", "report_id", report.ID, "error", err)
		return nil
	}
	return w
}

// Digest renders the evidence block handed to a Scorer.
func Digest(w *Weather, evidence []domain.Evidence) string {
	var b strings.Builder
	if w != nil {
		fmt.Fprintf(&b, "[Real-time Weather at Location]: %s, Temp: %.1f°C, Wind: %.1f m/s\n",
			w.Description, w.TemperatureC, w.WindSpeedMS)
		if len(w.Alerts) > 0 {
			fmt.Fprintf(&b, "[Active Weather Alerts]: %s\n", strings.Join(w.Alerts, "; "))
		}
	}
	if len(evidence) == 0 {
		b.WriteString("No search results found.")
		return b.String()
	}
	for _, e := range evidence {
		source := e.Source
		if source == "" {
			source = "Web"
		}
		fmt.Fprintf(&b, "- [%s]: %s\n", source, e.Content)
	}
	return b.String()
}

func clamp(score int) int {
	return max(0, min(100, score))
}
