// Package extract turns free text into the structured fields of a report.
package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/resilience"
)

// Failed is the extraction returned when text cannot be turned into a report.
func Failed() domain.Extraction {
	return domain.Extraction{
		LocationText: domain.ErrorIncidentType,
		IncidentType: domain.ErrorIncidentType,
		Severity:     domain.SeverityLow,
		Summary:      "Failed to extract data.",
	}
}

// JSONModel completes a prompt and decodes the model's JSON answer into out.
type JSONModel interface {
	CompleteJSON(ctx context.Context, prompt string, out any) error
}

// ModelExtractor reads report fields with a language model and resolves the
// location with a geocoder.
type ModelExtractor struct {
	model    JSONModel
	geocoder domain.Geocoder
	caller   *resilience.Caller
	fallback *domain.Coordinate
	logger   *slog.Logger
}

// NewModelExtractor creates an extractor. geocoder may be nil, in which case
// extractions carry the fallback coordinate (or none when fallback is nil).
func NewModelExtractor(model JSONModel, geocoder domain.Geocoder, caller *resilience.Caller, fallback *domain.Coordinate, logger *slog.Logger) *ModelExtractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if caller == nil {
		caller = resilience.New(resilience.WithLogger(logger))
	}
	return &ModelExtractor{
		model:    model,
		geocoder: geocoder,
		caller:   caller,
		fallback: fallback,
		logger:   logger,
	}
}

type fields struct {
	LocationText string  `json:"location_text"`
	IncidentType string  `json:"incident_type"`
	Severity     string  `json:"severity"`
	Summary      string  `json:"summary"`
	Confidence   float64 `json:"confidence"`
}

// Extract implements the pipeline's extractor contract. Model failures yield
// the Failed extraction rather than an error.
func (x *ModelExtractor) Extract(ctx context.Context, text string) domain.Extraction {
	f, err := resilience.Do(ctx, x.caller, "extract", func(ctx context.Context) (fields, error) {
		var f fields
		if err := x.model.CompleteJSON(ctx, extractPrompt(text), &f); err != nil {
			return fields{}, err
		}
		return f, nil
	})
	if err != nil {
		x.logger.Warn("extraction failed", "error", err)
		return Failed()
	}

	incidentType := strings.TrimSpace(f.IncidentType)
	if incidentType == "" || incidentType == domain.ErrorIncidentType {
		return Failed()
	}

	ex := domain.Extraction{
		LocationText: strings.TrimSpace(f.LocationText),
		IncidentType: incidentType,
		Severity:     domain.ParseSeverity(f.Severity),
		Summary:      strings.TrimSpace(f.Summary),
		Confidence:   max(0, min(1, f.Confidence)),
	}
	ex.Coordinate = x.locate(ctx, ex.LocationText)
	return ex
}

func (x *ModelExtractor) locate(ctx context.Context, location string) *domain.Coordinate {
	if x.geocoder == nil || location == "" {
		return x.fallback
	}
	res, err := resilience.Do(ctx, x.caller, "geocode", func(ctx context.Context) (domain.GeocodingResult, error) {
		return x.geocoder.ForwardGeocode(ctx, location)
	})
	if err != nil {
		x.logger.Warn("geocoding failed", "location", location, "error", err)
		return x.fallback
	}
	if !res.Found() {
		return x.fallback
	}
	c := res.Coordinate()
	return &c
}

func extractPrompt(text string) string {
	return fmt.Sprintf("You triage messages for an emergency response team.\n"+
		"Read this post and extract the incident it describes.\n\n"+
		"Post: %q\n\n"+
		"Answer with a JSON object only, with keys:\n"+
		"- location_text: the specific place mentioned, e.g. \"5th and Elm\"\n"+
		"- incident_type: e.g. \"Fire\", \"Flood\", \"Earthquake\"\n"+
		"- severity: one of \"Low\", \"Medium\", \"High\", \"Critical\"\n"+
		"- summary: one sentence describing the situation\n"+
		"- confidence: 0.0 to 1.0, how likely this is a real actionable incident", text)
}
