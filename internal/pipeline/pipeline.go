package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/Mathew005/aura-agent/internal/correlate"
	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/observability"
	"github.com/Mathew005/aura-agent/internal/verify"
	"github.com/jonboulle/clockwork"
)

// Extractor turns text into report fields. A failed extraction carries the
// domain.ErrorIncidentType sentinel.
type Extractor interface {
	Extract(ctx context.Context, text string) domain.Extraction
}

// Strategist turns an incident context into search queries.
type Strategist interface {
	Strategy(ctx context.Context, incidentContext string) []string
}

// Gatherer runs search queries and returns the evidence found.
type Gatherer interface {
	Gather(ctx context.Context, queries []string) ([]domain.Evidence, error)
}

// Verifier scores a report against its evidence.
type Verifier interface {
	Verify(ctx context.Context, report domain.Report, evidence []domain.Evidence) verify.Result
}

// Store consolidates verified reports into incidents.
type Store interface {
	Consolidate(ctx context.Context, report domain.Report) (correlate.Outcome, error)
	Len() int
	Reset()
}

// ProactiveQueries is the pool the idle fallback picks from.
var ProactiveQueries = []string{
	"latest natural disasters news",
	"breaking earthquake alerts twitter",
	"flood warnings global",
	"wildfire updates reddit",
	"tsunami warning recent",
	"site:facebook.com disaster reports public",
	"site:twitter.com emergency alerts",
	"site:reddit.com r/disasterupdate",
}

const (
	DefaultIdleThreshold = 10 * time.Second
	DefaultCycleTimeout  = 2 * time.Minute

	ingestPreviewLen = 50
)

// Deps are the collaborators of an Orchestrator. Sink may be nil.
type Deps struct {
	Feed       Feed
	Extractor  Extractor
	Strategist Strategist
	Gatherer   Gatherer
	Verifier   Verifier
	Store      Store
	Sink       Sink
}

// Config tunes an Orchestrator.
type Config struct {
	IdleThreshold time.Duration
	CycleTimeout  time.Duration
	Queries       []string
	Clock         clockwork.Clock
	Rand          *rand.Rand
}

// Orchestrator runs ingestion cycles: ingest, extract, search, verify and
// consolidate.
type Orchestrator struct {
	deps    Deps
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics

	processed    atomic.Int64
	lastActivity atomic.Int64 // unix nanos
	cycles       atomic.Int64
	ready        atomic.Bool
}

// New creates an Orchestrator. Zero Config fields take their defaults.
func New(deps Deps, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = DefaultIdleThreshold
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}
	if len(cfg.Queries) == 0 {
		cfg.Queries = ProactiveQueries
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	o := &Orchestrator{deps: deps, cfg: cfg, logger: logger, metrics: metrics}
	o.touch()
	return o
}

// CheckReadiness returns nil once the orchestrator has completed a cycle.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if !o.ready.Load() {
		return errors.New("pipeline has not completed a cycle yet")
	}
	return nil
}

// Processed returns the number of items processed since start or the last reset.
func (o *Orchestrator) Processed() int64 { return o.processed.Load() }

// Incidents returns the number of incidents in the store.
func (o *Orchestrator) Incidents() int { return o.deps.Store.Len() }

// LastActivity returns when an item was last ingested.
func (o *Orchestrator) LastActivity() time.Time {
	return time.Unix(0, o.lastActivity.Load())
}

// Reset clears the incident store and the processed counter, and restarts
// the feed when it can be rewound.
func (o *Orchestrator) Reset() {
	o.deps.Store.Reset()
	if r, ok := o.deps.Feed.(Rewinder); ok {
		r.Rewind()
	}
	o.processed.Store(0)
	o.touch()
	o.logger.Info("pipeline reset")
}

func (o *Orchestrator) touch() {
	o.lastActivity.Store(o.cfg.Clock.Now().UnixNano())
}

// ProcessNext runs one cycle. It always returns a trace and a status; panics
// in collaborators become StatusFailed.
func (o *Orchestrator) ProcessNext(ctx context.Context) (cycle Cycle) {
	start := o.cfg.Clock.Now()
	cycle.StartedAt = start
	id := o.cycles.Add(1)
	logger := o.logger.With("cycle", id)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("cycle panicked", "panic", r, "stack", string(debug.Stack()))
			cycle.Incident = nil
			cycle.Outcome = nil
			cycle.record(StageSystem, 0, "Internal error: %v", r)
			cycle.finish(StatusFailed, fmt.Sprintf("internal error: %v", r))
		}
		cycle.Duration = o.cfg.Clock.Since(start)
		o.ready.Store(true)
		if o.metrics != nil {
			o.metrics.CyclesTotal.WithLabelValues(string(cycle.Status)).Inc()
			o.metrics.CycleDuration.Observe(cycle.Duration.Seconds())
		}
		logger.Debug("cycle finished", "status", cycle.Status, "duration", cycle.Duration)
	}()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.CycleTimeout)
	defer cancel()

	item, ok := o.ingest(ctx, &cycle, logger)
	if !ok {
		return cycle
	}
	cycle.Item = &item

	o.run(ctx, &cycle, item, logger)
	switch cycle.Status {
	case StatusSuccess, StatusRejected, StatusExtractionFailed, StatusUnlocated:
		o.processed.Add(1)
	}
	return cycle
}

// ingest pulls the next item from the feed, falling back to a proactive
// search once the system has been idle past the threshold.
func (o *Orchestrator) ingest(ctx context.Context, cycle *Cycle, logger *slog.Logger) (domain.Item, bool) {
	stageStart := o.cfg.Clock.Now()

	item, ok, err := o.deps.Feed.Next(ctx)
	if err != nil {
		logger.Warn("feed read failed", "error", err)
	}
	if ok {
		if item.ReceivedAt.IsZero() {
			item.ReceivedAt = o.cfg.Clock.Now()
		}
		o.touch()
		if o.metrics != nil {
			o.metrics.FeedItems.WithLabelValues(item.Source).Inc()
		}
		cycle.record(StageIngest, o.cfg.Clock.Since(stageStart), "Ingesting: %s", preview(item.Text))
		return item, true
	}
	if o.stopped(ctx, cycle) {
		return domain.Item{}, false
	}

	idle := o.cfg.Clock.Since(o.LastActivity())
	if idle <= o.cfg.IdleThreshold {
		msg := "No new incidents"
		if err != nil {
			msg = "Feed unavailable: " + err.Error()
		}
		cycle.finish(StatusWaiting, msg)
		return domain.Item{}, false
	}

	return o.proactive(ctx, cycle, idle, logger)
}

func (o *Orchestrator) proactive(ctx context.Context, cycle *Cycle, idle time.Duration, logger *slog.Logger) (domain.Item, bool) {
	stageStart := o.cfg.Clock.Now()
	cycle.record(StageSystem, 0, "Idle for %s. Initiating proactive search...", idle.Round(time.Second))

	query := o.cfg.Queries[o.intN(len(o.cfg.Queries))]
	results, err := o.deps.Gatherer.Gather(ctx, []string{query})
	d := o.cfg.Clock.Since(stageStart)
	o.observeStage(StageProactive, d)
	cycle.record(StageProactive, d, "Proactively searching for '%s'...", query)
	if err != nil {
		logger.Warn("proactive search failed", "query", query, "error", err)
	}
	if o.stopped(ctx, cycle) {
		return domain.Item{}, false
	}
	if len(results) == 0 {
		cycle.finish(StatusWaiting, "Proactive search yielded no results")
		return domain.Item{}, false
	}

	best := results[0]
	source := best.Source
	if source == "" {
		source = "Web"
	}
	item := domain.Item{
		Text:       best.Content,
		Source:     fmt.Sprintf("Proactive Scout (%s)", source),
		ReceivedAt: o.cfg.Clock.Now(),
	}
	o.touch()
	if o.metrics != nil {
		o.metrics.FeedItems.WithLabelValues("proactive").Inc()
	}
	cycle.record(StageIngest, 0, "Ingesting: %s", preview(item.Text))
	return item, true
}

// run takes an ingested item through extraction, search, verification and
// consolidation. The store is touched only in the final stage.
func (o *Orchestrator) run(ctx context.Context, cycle *Cycle, item domain.Item, logger *slog.Logger) {
	// Extract.
	t := o.cfg.Clock.Now()
	ex := o.deps.Extractor.Extract(ctx, item.Text)
	d := o.stageDone(StageExtract, t)
	if o.stopped(ctx, cycle) {
		return
	}
	if ex.Failed() {
		cycle.record(StageExtract, d, "Extraction failed")
		cycle.finish(StatusExtractionFailed, "Extractor could not read the item")
		logger.Info("extraction failed", "source", item.Source)
		return
	}
	report := domain.NewReport(item, ex)
	cycle.Report = &report
	cycle.record(StageExtract, d, "Identified %s at %s", ex.IncidentType, ex.LocationText)

	// Search.
	t = o.cfg.Clock.Now()
	cycle.record(StageSearch, 0, "Generating search strategy...")
	queries := o.deps.Strategist.Strategy(ctx, fmt.Sprintf("%s in %s", ex.IncidentType, ex.LocationText))
	evidence, err := o.deps.Gatherer.Gather(ctx, queries)
	d = o.stageDone(StageSearch, t)
	cycle.record(StageSearch, d, "Executed %d search queries, %d results", len(queries), len(evidence))
	if err != nil {
		logger.Warn("evidence gathering failed", "error", err)
	}
	if o.stopped(ctx, cycle) {
		return
	}

	// Verify.
	t = o.cfg.Clock.Now()
	res := o.deps.Verifier.Verify(ctx, report, evidence)
	d = o.stageDone(StageVerify, t)
	cycle.Verification = &res
	report.VerificationScore = res.Score
	report.Verified = res.Verified
	report.VerificationNotes = res.Notes
	report.Citations = res.Sources
	cycle.record(StageVerify, d, "Cross-referenced %d sources. Credibility score %d/100", len(evidence), res.Score)
	if o.stopped(ctx, cycle) {
		return
	}
	if !res.Verified {
		cycle.record(StageVerify, 0, "Rejected (low credibility)")
		cycle.finish(StatusRejected, res.Notes)
		logger.Info("report rejected", "report_id", report.ID, "score", res.Score)
		return
	}

	// Consolidate.
	t = o.cfg.Clock.Now()
	out, err := o.deps.Store.Consolidate(ctx, report)
	d = o.stageDone(StageConsolidate, t)
	switch {
	case errors.Is(err, correlate.ErrMissingCoordinate):
		cycle.record(StageConsolidate, d, "Skipped: report has no coordinate")
		cycle.finish(StatusUnlocated, "Report could not be placed on the map")
		return
	case err != nil:
		if o.stopped(ctx, cycle) {
			return
		}
		logger.Error("consolidation failed", "report_id", report.ID, "error", err)
		cycle.record(StageConsolidate, d, "Consolidation failed: %v", err)
		cycle.finish(StatusFailed, err.Error())
		return
	}

	cycle.Report = &report
	cycle.Outcome = &out
	view := NewIncidentView(out.Incident)
	cycle.Incident = &view
	cycle.record(StageConsolidate, d, "Consolidated into %s", out.IncidentTitle)
	cycle.record(StageSystem, 0, "%s Incident #%d", upper(out.Action), out.IncidentID)
	cycle.finish(StatusSuccess, "")

	if o.deps.Sink != nil {
		o.publish(ctx, out, logger)
	}
}

// publish hands the outcome to the sink. The store has already committed, so
// neither an error nor a panic here changes the cycle status.
func (o *Orchestrator) publish(ctx context.Context, out correlate.Outcome, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("sink panicked", "incident_id", out.IncidentID, "panic", r)
		}
	}()
	if err := o.deps.Sink.Publish(ctx, out); err != nil {
		logger.Warn("publish consolidation event failed", "incident_id", out.IncidentID, "error", err)
		return
	}
	if o.metrics != nil {
		o.metrics.EventsPublished.Inc()
	}
}

// stopped finishes the cycle as waiting if its context ended.
func (o *Orchestrator) stopped(ctx context.Context, cycle *Cycle) bool {
	err := ctx.Err()
	if err == nil {
		return false
	}
	msg := "Cycle cancelled"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "Cycle deadline exceeded"
	}
	cycle.record(StageSystem, 0, "%s", msg)
	cycle.finish(StatusWaiting, msg)
	return true
}

func (o *Orchestrator) stageDone(stage Stage, start time.Time) time.Duration {
	d := o.cfg.Clock.Since(start)
	o.observeStage(stage, d)
	return d
}

func (o *Orchestrator) observeStage(stage Stage, d time.Duration) {
	if o.metrics != nil {
		o.metrics.StageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
	}
}

func (o *Orchestrator) intN(n int) int {
	if o.cfg.Rand != nil {
		return o.cfg.Rand.IntN(n)
	}
	return rand.IntN(n)
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= ingestPreviewLen {
		return text
	}
	return string(r[:ingestPreviewLen]) + "..."
}

func upper(a correlate.Action) string {
	switch a {
	case correlate.ActionCreated:
		return "CREATED"
	case correlate.ActionMerged:
		return "MERGED"
	default:
		return string(a)
	}
}
