package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrorIncidentType is the incident type an extractor returns when it could
// not turn text into a report.
const ErrorIncidentType = "Error"

// Coordinate is a WGS-84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// Citation points at a piece of supporting evidence. URL is empty when the
// evidence source has no addressable link.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Evidence is one snippet returned by an evidence gatherer.
type Evidence struct {
	Source    string     `json:"source"`
	Query     string     `json:"query"`
	Content   string     `json:"content"`
	Timestamp string     `json:"timestamp,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
}

// Item is a raw unit of text pulled from a feed, before extraction.
type Item struct {
	Text       string    `json:"text"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
}

// Extraction is the fixed record shape an extractor produces from text.
type Extraction struct {
	LocationText string      `json:"location_text"`
	Coordinate   *Coordinate `json:"coordinates,omitempty"`
	IncidentType string      `json:"incident_type"`
	Severity     Severity    `json:"severity"`
	Summary      string      `json:"summary"`
	Confidence   float64     `json:"confidence"`
}

// Failed reports whether the extraction carries the error sentinel type.
func (e Extraction) Failed() bool {
	return e.IncidentType == ErrorIncidentType
}

// Report is one ingested observation after extraction and verification.
// A report is immutable once attached to an incident.
type Report struct {
	ID           string      `json:"id"`
	Text         string      `json:"text"`
	Source       string      `json:"source"`
	IncidentType string      `json:"incident_type"`
	LocationText string      `json:"location_text"`
	Coordinate   *Coordinate `json:"coordinates,omitempty"`
	Severity     Severity    `json:"severity"`
	Confidence   float64     `json:"confidence"`
	Summary      string      `json:"summary"`

	VerificationScore int        `json:"credibility_score"`
	Verified          bool       `json:"is_verified"`
	VerificationNotes string     `json:"verification_notes,omitempty"`
	Citations         []Citation `json:"sources,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// NewReport builds an unverified report from a feed item and its extraction.
func NewReport(item Item, ex Extraction) Report {
	received := item.ReceivedAt
	if received.IsZero() {
		received = clock.Now()
	}
	return Report{
		ID:           uuid.NewString(),
		Text:         item.Text,
		Source:       item.Source,
		IncidentType: ex.IncidentType,
		LocationText: ex.LocationText,
		Coordinate:   ex.Coordinate,
		Severity:     ex.Severity,
		Confidence:   ex.Confidence,
		Summary:      ex.Summary,
		ReceivedAt:   received,
	}
}

// Incident is the canonical record a set of matching reports consolidate into.
type Incident struct {
	ID           int64      `json:"id"`
	Type         string     `json:"type"`
	LocationText string     `json:"location_text"`
	Coordinate   Coordinate `json:"coordinates"`
	Severity     Severity   `json:"severity"`
	Confidence   float64    `json:"confidence"`
	Reports      []Report   `json:"reports"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"last_updated"`
}

// Title is the human-readable label used in traces and API responses.
func (i *Incident) Title() string {
	return fmt.Sprintf("%s at %s", i.Type, i.LocationText)
}

// FirstSummary returns the summary of the report that created the incident.
func (i *Incident) FirstSummary() string {
	if len(i.Reports) == 0 {
		return ""
	}
	return i.Reports[0].Summary
}

// Clone returns a copy that shares no mutable state with i. Reports are
// immutable, so only the slice header is copied.
func (i *Incident) Clone() Incident {
	out := *i
	out.Reports = append([]Report(nil), i.Reports...)
	return out
}
