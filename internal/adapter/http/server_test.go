package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	httpadapter "github.com/Mathew005/aura-agent/internal/adapter/http"
	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAgent struct {
	readyErr  error
	cycle     pipeline.Cycle
	processed int64
	incidents int
	resets    int
}

func (m *mockAgent) CheckReadiness(context.Context) error        { return m.readyErr }
func (m *mockAgent) ProcessNext(context.Context) pipeline.Cycle { return m.cycle }
func (m *mockAgent) Processed() int64                           { return m.processed }
func (m *mockAgent) Incidents() int                             { return m.incidents }
func (m *mockAgent) Reset()                                     { m.resets++ }

type mockIncidents struct {
	items []domain.Incident
}

func (m *mockIncidents) List() []domain.Incident { return m.items }

func (m *mockIncidents) Get(id int64) (domain.Incident, bool) {
	for _, inc := range m.items {
		if inc.ID == id {
			return inc, true
		}
	}
	return domain.Incident{}, false
}

type failingIngester struct{ err error }

func (f failingIngester) Enqueue(context.Context, domain.Item) error { return f.err }

type fixture struct {
	agent     *mockAgent
	incidents *mockIncidents
	queue     *pipeline.ManualFeed
	srv       *httpadapter.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		agent:     &mockAgent{},
		incidents: &mockIncidents{},
		queue:     pipeline.NewManualFeed(2),
	}
	f.srv = newServer(f.agent, f.incidents, f.queue)
	return f
}

func newServer(agent httpadapter.Agent, incidents httpadapter.IncidentReader, ingest httpadapter.Ingester) *httpadapter.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := httpadapter.NewHandler(agent, incidents, ingest, logger)
	return httpadapter.NewServer(":0", h, logger)
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthzReturns200(t *testing.T) {
	rec := newFixture(t).do(http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := newFixture(t).do(http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	f := newFixture(t)
	f.agent.readyErr = fmt.Errorf("not ready yet")

	rec := f.do(http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture(t).do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.agent.processed = 7
	f.agent.incidents = 3

	rec := f.do(http.MethodGet, "/api/v1/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, httpadapter.StatusResponse{Status: "online", IncidentsCount: 3, ProcessedCount: 7},
		decode[httpadapter.StatusResponse](t, rec))
}

func TestSimulate(t *testing.T) {
	f := newFixture(t)
	f.agent.cycle = pipeline.Cycle{
		Status: pipeline.StatusSuccess,
		Trace: []pipeline.TraceEntry{
			{Stage: pipeline.StageIngest, Message: "Ingesting: fire"},
			{Stage: pipeline.StageConsolidate, Message: "Consolidated into Fire at 5th Street"},
		},
		Incident: &pipeline.IncidentView{ID: 1, Type: "Fire", ReportCount: 1},
	}

	rec := f.do(http.MethodPost, "/api/v1/simulate", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, []any{"System: Ingesting: fire", "Correlator: Consolidated into Fire at 5th Street"}, body["logs"])
	incident, ok := body["incident"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 1, incident["id"], 0)
}

func TestSimulate_FailedCycleIs500(t *testing.T) {
	f := newFixture(t)
	f.agent.cycle = pipeline.Cycle{Status: pipeline.StatusFailed, Message: "internal error: boom"}

	rec := f.do(http.MethodPost, "/api/v1/simulate", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error: boom", decode[map[string]any](t, rec)["error"])
}

func TestReset(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/reset", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.agent.resets)
}

func TestIncidents(t *testing.T) {
	f := newFixture(t)
	f.incidents.items = []domain.Incident{
		{ID: 1, Type: "Fire", LocationText: "5th Street", Severity: domain.SeverityHigh},
		{ID: 2, Type: "Flood", LocationText: "Main St", Severity: domain.SeverityMedium},
	}

	rec := f.do(http.MethodGet, "/api/v1/incidents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]domain.Incident](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "Flood", list[1].Type)

	rec = f.do(http.MethodGet, "/api/v1/incidents/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.SeverityHigh, decode[domain.Incident](t, rec).Severity)
}

func TestGetIncident_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		want int
	}{
		{"not a number", "/api/v1/incidents/abc", http.StatusBadRequest},
		{"zero", "/api/v1/incidents/0", http.StatusBadRequest},
		{"unknown", "/api/v1/incidents/42", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newFixture(t).do(http.MethodGet, tt.path, "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSubmitReport(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/reports", `{"text":"  Fire at the depot  "}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	item, ok, err := f.queue.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Fire at the depot", item.Text)
	assert.Equal(t, "Manual", item.Source)
	assert.False(t, item.ReceivedAt.IsZero())
}

func TestSubmitReport_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"text":`},
		{"missing text", `{"source":"Twitter"}`},
		{"too short", `{"text":"hi"}`},
		{"long source", `{"text":"Fire at the depot","source":"` + strings.Repeat("x", 101) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(http.MethodPost, "/api/v1/reports", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, 0, f.queue.Len())
		})
	}
}

func TestSubmitReport_QueueFull(t *testing.T) {
	f := newFixture(t)
	for range 2 {
		require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/v1/reports", `{"text":"Fire at the depot"}`).Code)
	}

	rec := f.do(http.MethodPost, "/api/v1/reports", `{"text":"Fire at the depot"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitReport_IngesterError(t *testing.T) {
	srv := newServer(&mockAgent{}, &mockIncidents{}, failingIngester{err: errors.New("redis down")})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(`{"text":"Fire at the depot"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
