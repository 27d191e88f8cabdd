package http

import (
	"strings"
	"time"

	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/pipeline"
)

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Status         string `json:"status"`
	IncidentsCount int    `json:"incidents_count"`
	ProcessedCount int64  `json:"processed_count"`
}

// SubmitReportRequest is the body of POST /reports.
type SubmitReportRequest struct {
	Text   string `json:"text" validate:"required,min=3,max=4000"`
	Source string `json:"source" validate:"omitempty,max=100"`
}

// ToItem converts the request into a feed item.
func (r SubmitReportRequest) ToItem(now time.Time) domain.Item {
	source := strings.TrimSpace(r.Source)
	if source == "" {
		source = "Manual"
	}
	return domain.Item{Text: strings.TrimSpace(r.Text), Source: source, ReceivedAt: now}
}

// CycleResponse is returned by POST /simulate.
type CycleResponse struct {
	pipeline.Cycle
	Logs []string `json:"logs"`
}

// NewCycleResponse pairs a cycle with its rendered log lines.
func NewCycleResponse(c pipeline.Cycle) CycleResponse {
	return CycleResponse{Cycle: c, Logs: c.Logs()}
}
