package pipeline

import (
	"fmt"
	"time"

	"github.com/Mathew005/aura-agent/internal/correlate"
	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/verify"
)

// Status is the terminal state of one cycle.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusWaiting          Status = "waiting"
	StatusExtractionFailed Status = "extraction_failed"
	StatusRejected         Status = "rejected"
	StatusUnlocated        Status = "unlocated"
	StatusFailed           Status = "failed"
)

// Stage names a step of the cycle in traces and metrics.
type Stage string

const (
	StageSystem      Stage = "system"
	StageIngest      Stage = "ingest"
	StageProactive   Stage = "proactive"
	StageExtract     Stage = "extract"
	StageSearch      Stage = "search"
	StageVerify      Stage = "verify"
	StageConsolidate Stage = "consolidate"
)

var stageLabels = map[Stage]string{
	StageSystem:      "System",
	StageIngest:      "System",
	StageProactive:   "Scout",
	StageExtract:     "Extractor",
	StageSearch:      "Scout",
	StageVerify:      "Verifier",
	StageConsolidate: "Correlator",
}

// TraceEntry records what one stage did.
type TraceEntry struct {
	Stage    Stage         `json:"stage"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration_ns"`
}

// Line renders the entry as a human-readable log line.
func (e TraceEntry) Line() string {
	label, ok := stageLabels[e.Stage]
	if !ok {
		label = string(e.Stage)
	}
	return fmt.Sprintf("%s: %s", label, e.Message)
}

// IncidentView is the consolidated incident returned by a successful cycle.
type IncidentView struct {
	ID           int64             `json:"id"`
	Type         string            `json:"type"`
	LocationText string            `json:"location_text"`
	Coordinate   domain.Coordinate `json:"coordinates"`
	Severity     domain.Severity   `json:"severity"`
	Confidence   float64           `json:"confidence"`
	ReportCount  int               `json:"report_count"`
}

// NewIncidentView summarizes an incident.
func NewIncidentView(inc domain.Incident) IncidentView {
	return IncidentView{
		ID:           inc.ID,
		Type:         inc.Type,
		LocationText: inc.LocationText,
		Coordinate:   inc.Coordinate,
		Severity:     inc.Severity,
		Confidence:   inc.Confidence,
		ReportCount:  len(inc.Reports),
	}
}

// Cycle is the full record of one ingestion cycle. Incident is set only when
// Status is StatusSuccess.
type Cycle struct {
	Status       Status             `json:"status"`
	Message      string             `json:"message,omitempty"`
	Trace        []TraceEntry       `json:"trace"`
	Item         *domain.Item       `json:"raw_data,omitempty"`
	Report       *domain.Report     `json:"report,omitempty"`
	Verification *verify.Result     `json:"verification,omitempty"`
	Outcome      *correlate.Outcome `json:"outcome,omitempty"`
	Incident     *IncidentView      `json:"incident,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	Duration     time.Duration      `json:"duration_ns"`
}

// Logs renders the trace as human-readable lines.
func (c *Cycle) Logs() []string {
	out := make([]string, 0, len(c.Trace))
	for _, e := range c.Trace {
		out = append(out, e.Line())
	}
	return out
}

func (c *Cycle) record(stage Stage, d time.Duration, format string, args ...any) {
	c.Trace = append(c.Trace, TraceEntry{Stage: stage, Message: fmt.Sprintf(format, args...), Duration: d})
}

func (c *Cycle) finish(status Status, message string) {
	c.Status = status
	c.Message = message
}
