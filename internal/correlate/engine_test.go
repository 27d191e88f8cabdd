package correlate_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mathew005/aura-agent/internal/correlate"
	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/observability"
	"github.com/Mathew005/aura-agent/internal/resilience"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report(incidentType string, lat, lon float64, sev domain.Severity, summary string) domain.Report {
	return domain.Report{
		ID:           fmt.Sprintf("%s-%f-%f-%s", incidentType, lat, lon, summary),
		IncidentType: incidentType,
		LocationText: "5th and Elm",
		Coordinate:   &domain.Coordinate{Lat: lat, Lon: lon},
		Severity:     sev,
		Confidence:   0.8,
		Summary:      summary,
	}
}

const fireSummary = "Large fire near 5th and Elm"

func TestConsolidate_Scenarios(t *testing.T) {
	fake := clockwork.NewFakeClock()
	e := correlate.New(correlate.WithClock(fake))
	ctx := context.Background()

	// A: first report creates incident 1.
	a, err := e.Consolidate(ctx, report("Fire", 34.0, -118.0, domain.SeverityHigh, fireSummary))
	require.NoError(t, err)
	assert.Equal(t, correlate.ActionCreated, a.Action)
	assert.Equal(t, int64(1), a.IncidentID)
	assert.Equal(t, "Fire at 5th and Elm", a.IncidentTitle)
	assert.Equal(t, 1, e.Len())
	assert.Equal(t, fake.Now(), a.Incident.CreatedAt)

	// B: same place, higher severity merges and escalates.
	fake.Advance(time.Minute)
	b, err := e.Consolidate(ctx, report("Fire", 34.0, -118.0, domain.SeverityCritical, "Fire near Elm is spreading fast"))
	require.NoError(t, err)
	assert.Equal(t, correlate.ActionMerged, b.Action)
	assert.Equal(t, int64(1), b.IncidentID)
	assert.Equal(t, domain.SeverityCritical, b.Incident.Severity)
	assert.Len(t, b.Incident.Reports, 2)
	assert.Equal(t, fake.Now(), b.Incident.UpdatedAt)
	assert.InDelta(t, 0.9, b.Incident.Confidence, 1e-9)

	// C: different type at the same place creates incident 2.
	c, err := e.Consolidate(ctx, report("Flood", 34.0, -118.0, domain.SeverityLow, fireSummary))
	require.NoError(t, err)
	assert.Equal(t, correlate.ActionCreated, c.Action)
	assert.Equal(t, int64(2), c.IncidentID)
	assert.Equal(t, 2, e.Len())
}

func TestConsolidate_MergeMonotonicity(t *testing.T) {
	e := correlate.New()
	ctx := context.Background()

	first := report("Fire", 34.0, -118.0, domain.SeverityMedium, fireSummary)
	first.Confidence = 0.3
	_, err := e.Consolidate(ctx, first)
	require.NoError(t, err)

	severities := []domain.Severity{domain.SeverityLow, domain.SeverityCritical, domain.SeverityHigh, domain.SeverityLow, domain.SeverityMedium, domain.SeverityLow, domain.SeverityLow, domain.SeverityLow}
	prevConfidence := 0.3
	for n, sev := range severities {
		out, err := e.Consolidate(ctx, report("Fire", 34.0001, -118.0001, sev, "fire near elm again"))
		require.NoError(t, err)
		require.Equal(t, correlate.ActionMerged, out.Action)

		want := min(1.0, 0.3+0.1*float64(n+1))
		assert.InDelta(t, want, out.Incident.Confidence, 1e-9)
		assert.GreaterOrEqual(t, out.Incident.Confidence, prevConfidence)
		assert.LessOrEqual(t, out.Incident.Confidence, 1.0)
		prevConfidence = out.Incident.Confidence

		if n == 0 {
			assert.Equal(t, domain.SeverityMedium, out.Incident.Severity, "never lowered")
		} else {
			assert.Equal(t, domain.SeverityCritical, out.Incident.Severity)
		}
	}
}

func TestConsolidate_SpatialThresholdBoundary(t *testing.T) {
	tests := []struct {
		name   string
		lon    float64
		merged bool
	}{
		{"strictly inside", 0.005, true},
		{"exactly at threshold", 0.01, false},
		{"strictly outside", 0.02, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := correlate.New(correlate.WithMetric(domain.Planar{}, 0.01))
			ctx := context.Background()

			_, err := e.Consolidate(ctx, report("Fire", 0, 0, domain.SeverityHigh, fireSummary))
			require.NoError(t, err)
			// Identical summary so the semantic check always passes.
			out, err := e.Consolidate(ctx, report("Fire", 0, tt.lon, domain.SeverityHigh, fireSummary))
			require.NoError(t, err)

			if tt.merged {
				assert.Equal(t, correlate.ActionMerged, out.Action)
				assert.Equal(t, 1, e.Len())
			} else {
				assert.Equal(t, correlate.ActionCreated, out.Action)
				assert.Equal(t, 2, e.Len())
			}
		})
	}
}

func TestConsolidate_HaversineRadius(t *testing.T) {
	e := correlate.New(correlate.WithMetric(domain.Haversine{}, 500))
	ctx := context.Background()

	_, err := e.Consolidate(ctx, report("Fire", 60.0, 10.0, domain.SeverityHigh, fireSummary))
	require.NoError(t, err)

	// 0.008° of longitude at 60°N is about 445 m.
	near, err := e.Consolidate(ctx, report("Fire", 60.0, 10.008, domain.SeverityHigh, fireSummary))
	require.NoError(t, err)
	assert.Equal(t, correlate.ActionMerged, near.Action)

	// 0.008° of latitude is about 890 m.
	far, err := e.Consolidate(ctx, report("Fire", 60.008, 10.0, domain.SeverityHigh, fireSummary))
	require.NoError(t, err)
	assert.Equal(t, correlate.ActionCreated, far.Action)
}

func TestConsolidate_SemanticMismatchCreates(t *testing.T) {
	e := correlate.New()
	ctx := context.Background()

	_, err := e.Consolidate(ctx, report("Fire", 34, -118, domain.SeverityHigh, "Kitchen blaze at restaurant"))
	require.NoError(t, err)
	out, err := e.Consolidate(ctx, report("Fire", 34, -118, domain.SeverityHigh, "Brush burning on hillside trail"))
	require.NoError(t, err)
	assert.Equal(t, correlate.ActionCreated, out.Action)
}

func TestConsolidate_PicksNearest(t *testing.T) {
	e := correlate.New(correlate.WithMetric(domain.Planar{}, 0.01))
	ctx := context.Background()

	// Two nearby incidents that do not match each other semantically.
	_, err := e.Consolidate(ctx, report("Fire", 0, 0, domain.SeverityLow, "fire smoke elm"))
	require.NoError(t, err)
	_, err = e.Consolidate(ctx, report("Fire", 0, 0.008, domain.SeverityLow, "fire warehouse blaze"))
	require.NoError(t, err)
	require.Equal(t, 2, e.Len())

	out, err := e.Consolidate(ctx, report("Fire", 0, 0.007, domain.SeverityLow, "fire smoke warehouse blaze elm"))
	require.NoError(t, err)
	assert.Equal(t, correlate.ActionMerged, out.Action)
	assert.Equal(t, int64(2), out.IncidentID)
}

func TestConsolidate_TieGoesToLowestID(t *testing.T) {
	e := correlate.New()
	ctx := context.Background()

	_, err := e.Consolidate(ctx, report("Fire", 34, -118, domain.SeverityLow, "fire smoke elm"))
	require.NoError(t, err)
	_, err = e.Consolidate(ctx, report("Fire", 34, -118, domain.SeverityLow, "fire warehouse blaze"))
	require.NoError(t, err)
	require.Equal(t, 2, e.Len())

	out, err := e.Consolidate(ctx, report("Fire", 34, -118, domain.SeverityLow, "fire smoke warehouse blaze elm"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.IncidentID)
}

func TestConsolidate_MissingCoordinate(t *testing.T) {
	e := correlate.New()
	r := report("Fire", 0, 0, domain.SeverityHigh, fireSummary)
	r.Coordinate = nil

	_, err := e.Consolidate(context.Background(), r)
	require.ErrorIs(t, err, correlate.ErrMissingCoordinate)
	assert.Zero(t, e.Len())

	out, err := e.Consolidate(context.Background(), report("Fire", 0, 0, domain.SeverityHigh, fireSummary))
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.IncidentID, "id counter untouched")
}

func TestConsolidate_CancelledContextLeavesStore(t *testing.T) {
	e := correlate.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Consolidate(ctx, report("Fire", 0, 0, domain.SeverityHigh, fireSummary))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, e.Len())
}

func TestConsolidate_IDsMonotonic(t *testing.T) {
	e := correlate.New()
	ctx := context.Background()

	var created []int64
	for i := range 12 {
		// Every third report repeats the previous location and merges.
		lat := float64(i / 3 * 2)
		out, err := e.Consolidate(ctx, report("Fire", lat, 0, domain.SeverityLow, fireSummary))
		require.NoError(t, err)
		if out.Action == correlate.ActionCreated {
			created = append(created, out.IncidentID)
		}
	}

	assert.Equal(t, []int64{1, 2, 3, 4}, created)
	ids := make([]int64, 0, e.Len())
	for _, inc := range e.List() {
		ids = append(ids, inc.ID)
		assert.Len(t, inc.Reports, 3)
	}
	assert.Equal(t, created, ids)
}

func TestEngine_ResetRestartsSequence(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	e := correlate.New(correlate.WithMetrics(metrics))
	ctx := context.Background()

	for i := range 3 {
		_, err := e.Consolidate(ctx, report("Fire", float64(i*5), 0, domain.SeverityLow, fireSummary))
		require.NoError(t, err)
	}
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.IncidentsActive), 0)

	e.Reset()
	assert.Zero(t, e.Len())
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.IncidentsActive), 0)

	out, err := e.Consolidate(ctx, report("Fire", 0, 0, domain.SeverityLow, fireSummary))
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.IncidentID)
}

func TestEngine_ListAndGetReturnCopies(t *testing.T) {
	e := correlate.New()
	_, err := e.Consolidate(context.Background(), report("Fire", 0, 0, domain.SeverityLow, fireSummary))
	require.NoError(t, err)

	list := e.List()
	list[0].Reports[0].Summary = "mutated"
	list[0].Reports = append(list[0].Reports, domain.Report{})

	got, ok := e.Get(1)
	require.True(t, ok)
	assert.Len(t, got.Reports, 1)
	assert.Equal(t, fireSummary, got.Reports[0].Summary)

	_, ok = e.Get(99)
	assert.False(t, ok)
}

// slowMatcher widens the planning window so concurrent calls race on commit.
type slowMatcher struct {
	calls atomic.Int64
}

func (m *slowMatcher) Same(ctx context.Context, a, b string) bool {
	m.calls.Add(1)
	time.Sleep(time.Millisecond)
	return correlate.TokenOverlap{}.Same(ctx, a, b)
}

func TestConsolidate_ConcurrentReportsForSameEvent(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	e := correlate.New(correlate.WithMatcher(&slowMatcher{}), correlate.WithMetrics(metrics))

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := report("Fire", 34.0, -118.0, domain.SeverityLow, fireSummary)
			r.ID = fmt.Sprintf("r-%d", i)
			if _, err := e.Consolidate(context.Background(), r); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	require.Equal(t, 1, e.Len())
	inc, _ := e.Get(1)
	assert.Len(t, inc.Reports, n)
	assert.InDelta(t, 1.0, inc.Confidence, 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.CorrelationOutcomes.WithLabelValues("created")), 0)
	assert.InDelta(t, n-1, testutil.ToFloat64(metrics.CorrelationOutcomes.WithLabelValues("merged")), 0)
}

func TestConsolidate_ConcurrentDistinctEventsGetUniqueIDs(t *testing.T) {
	e := correlate.New()

	const n = 25
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Consolidate(context.Background(), report("Fire", float64(i), 0, domain.SeverityLow, fireSummary))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	want := make([]int64, n)
	for i := range want {
		want[i] = int64(i + 1)
	}
	var got []int64
	for _, inc := range e.List() {
		got = append(got, inc.ID)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

// --- matchers ---

type mockTextModel struct {
	answer string
	err    error
	calls  int
}

func (m *mockTextModel) Complete(context.Context, string) (string, error) {
	m.calls++
	return m.answer, m.err
}

func resilienceNoRetry() *resilience.Caller {
	return resilience.New(resilience.WithMaxAttempts(1))
}

func TestModelMatcher(t *testing.T) {
	ctx := context.Background()
	noRetry := resilienceNoRetry()

	yes := correlate.NewModelMatcher(&mockTextModel{answer: "Yes."}, noRetry, nil)
	assert.True(t, yes.Same(ctx, "a", "b"))

	no := correlate.NewModelMatcher(&mockTextModel{answer: "NO"}, noRetry, nil)
	assert.False(t, no.Same(ctx, fireSummary, fireSummary))

	failing := &mockTextModel{err: errors.New("connection reset")}
	fallback := correlate.NewModelMatcher(failing, noRetry, nil)
	assert.True(t, fallback.Same(ctx, fireSummary, "fire near elm"))
	assert.False(t, fallback.Same(ctx, fireSummary, "flood uptown"))
	assert.Equal(t, 2, failing.calls)
}

func TestTokenOverlap(t *testing.T) {
	ctx := context.Background()
	assert.True(t, correlate.TokenOverlap{}.Same(ctx, "fire near elm", "Elm fire"))
	assert.False(t, correlate.TokenOverlap{}.Same(ctx, "fire near elm", "fire downtown"))
	assert.True(t, correlate.TokenOverlap{MinShared: 1}.Same(ctx, "fire near elm", "fire downtown"))
}
