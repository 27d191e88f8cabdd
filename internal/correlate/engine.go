// Package correlate owns the incident store and decides whether a verified
// report extends a known incident or starts a new one.
//
// Matching reads a snapshot of the store without holding the write lock, so
// semantic checks that call out to a model never block other writers. A plan
// is committed only if the store version it was built from is still current;
// otherwise the engine plans again against the new state. Two reports for
// the same new event therefore cannot both create an incident.
package correlate

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultRadiusMeters is the haversine match radius.
	DefaultRadiusMeters = 1000.0
	// DefaultPlanarDegrees is the planar match threshold in raw degrees.
	DefaultPlanarDegrees = 0.01

	confidenceStep = 0.1
)

// ErrMissingCoordinate is returned for reports that cannot be placed on the map.
var ErrMissingCoordinate = errors.New("report has no coordinate")

// Action says what Consolidate did with a report.
type Action string

const (
	ActionCreated Action = "created"
	ActionMerged  Action = "merged"
)

// Outcome describes a successful consolidation.
type Outcome struct {
	Action        Action          `json:"action"`
	IncidentID    int64           `json:"incident_id"`
	IncidentTitle string          `json:"incident_title"`
	Incident      domain.Incident `json:"incident"`
}

// SemanticMatcher judges whether two summaries describe the same real-world
// event. Implementations handle their own failures.
type SemanticMatcher interface {
	Same(ctx context.Context, existing, incoming string) bool
}

// Engine is the in-process incident store.
type Engine struct {
	mu        sync.RWMutex
	incidents map[int64]*domain.Incident
	order     []int64
	nextID    int64
	version   uint64

	metric    domain.Metric
	threshold float64
	matcher   SemanticMatcher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetric sets the distance metric and the strict match threshold in the
// metric's unit.
func WithMetric(m domain.Metric, threshold float64) Option {
	return func(e *Engine) {
		e.metric = m
		e.threshold = threshold
	}
}

// WithMatcher sets the semantic matcher.
func WithMatcher(m SemanticMatcher) Option { return func(e *Engine) { e.matcher = m } }

// WithClock sets the time source for incident timestamps.
func WithClock(c clockwork.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithMetrics records outcomes and the store size.
func WithMetrics(m *observability.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// New creates an empty store. By default it matches within
// DefaultRadiusMeters by great-circle distance and compares summaries by
// token overlap.
func New(opts ...Option) *Engine {
	e := &Engine{
		incidents: make(map[int64]*domain.Incident),
		nextID:    1,
		metric:    domain.Haversine{},
		threshold: DefaultRadiusMeters,
		matcher:   TokenOverlap{},
		clock:     clockwork.NewRealClock(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type candidate struct {
	id       int64
	distance float64
	summary  string
}

// Consolidate merges report into the closest matching incident or creates a
// new one. Reports without a coordinate are refused with ErrMissingCoordinate
// and leave the store untouched.
func (e *Engine) Consolidate(ctx context.Context, report domain.Report) (Outcome, error) {
	if report.Coordinate == nil {
		return Outcome{}, ErrMissingCoordinate
	}

	// An incident's first report never changes, so verdicts stay valid
	// across re-plans.
	verdicts := make(map[int64]bool)

	for {
		candidates, version := e.candidates(report)

		var best int64
		for _, c := range candidates {
			same, ok := verdicts[c.id]
			if !ok {
				same = e.matcher.Same(ctx, c.summary, report.Summary)
				verdicts[c.id] = same
			}
			if same {
				best = c.id
				break
			}
		}

		if err := ctx.Err(); err != nil {
			return Outcome{}, fmt.Errorf("consolidate: %w", err)
		}

		out, ok := e.commit(version, best, report)
		if ok {
			return out, nil
		}
		if e.metrics != nil {
			e.metrics.CorrelationReplans.Inc()
		}
		e.logger.Debug("store changed during planning, re-planning", "report_id", report.ID)
	}
}

// candidates returns the spatial matches for report ordered by distance then
// id, with the store version they were read at.
func (e *Engine) candidates(report domain.Report) ([]candidate, uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []candidate
	for _, id := range e.order {
		inc := e.incidents[id]
		if inc.Type != report.IncidentType {
			continue
		}
		d := e.metric.Distance(*report.Coordinate, inc.Coordinate)
		if d >= e.threshold {
			continue
		}
		out = append(out, candidate{id: id, distance: d, summary: inc.FirstSummary()})
	}
	slices.SortFunc(out, func(a, b candidate) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	return out, e.version
}

func (e *Engine) commit(version uint64, best int64, report domain.Report) (Outcome, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.version != version {
		return Outcome{}, false
	}
	e.version++

	now := e.clock.Now()
	var (
		inc    *domain.Incident
		action Action
	)
	if best != 0 {
		inc = e.incidents[best]
		inc.Reports = append(inc.Reports, report)
		inc.UpdatedAt = now
		inc.Confidence = min(1.0, inc.Confidence+confidenceStep)
		inc.Severity = inc.Severity.Max(report.Severity)
		action = ActionMerged
	} else {
		inc = &domain.Incident{
			ID:           e.nextID,
			Type:         report.IncidentType,
			LocationText: report.LocationText,
			Coordinate:   *report.Coordinate,
			Severity:     report.Severity,
			Confidence:   max(0, min(1.0, report.Confidence)),
			Reports:      []domain.Report{report},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		e.incidents[inc.ID] = inc
		e.order = append(e.order, inc.ID)
		e.nextID++
		action = ActionCreated
	}

	if e.metrics != nil {
		e.metrics.CorrelationOutcomes.WithLabelValues(string(action)).Inc()
		e.metrics.IncidentsActive.Set(float64(len(e.order)))
	}
	e.logger.Info("report consolidated",
		"action", action,
		"incident_id", inc.ID,
		"report_id", report.ID,
		"reports", len(inc.Reports),
	)

	return Outcome{
		Action:        action,
		IncidentID:    inc.ID,
		IncidentTitle: inc.Title(),
		Incident:      inc.Clone(),
	}, true
}

// List returns copies of every incident in id order.
func (e *Engine) List() []domain.Incident {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.Incident, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.incidents[id].Clone())
	}
	return out
}

// Get returns a copy of the incident with the given id.
func (e *Engine) Get(id int64) (domain.Incident, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	inc, ok := e.incidents[id]
	if !ok {
		return domain.Incident{}, false
	}
	return inc.Clone(), true
}

// Len returns the number of incidents in the store.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.order)
}

// Reset discards every incident and restarts the id sequence at 1.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.incidents = make(map[int64]*domain.Incident)
	e.order = nil
	e.nextID = 1
	e.version++
	if e.metrics != nil {
		e.metrics.IncidentsActive.Set(0)
	}
}
