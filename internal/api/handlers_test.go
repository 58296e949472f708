package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/articleforge/articleforge/internal/breaker"
	"github.com/articleforge/articleforge/internal/job/model"
	"github.com/articleforge/articleforge/internal/job/store"
	"github.com/articleforge/articleforge/internal/metrics"
	"github.com/articleforge/articleforge/internal/orchestrator"
)

func newTestServer(t *testing.T) (*httptest.Server, *orchestrator.Orchestrator) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	breakers := breaker.NewRegistry(breaker.DefaultSettings())

	work := func(ctx context.Context, req *model.Request, progress orchestrator.ProgressFunc) (json.RawMessage, error) {
		progress(1, 1, "noop")
		return json.RawMessage(`{"html":"<p>ok</p>"}`), nil
	}

	orc, err := orchestrator.New(orchestrator.Config{
		Store:   store.NewMemory(),
		Work:    work,
		Metrics: m,
		Logger:  logger,
	})
	require.NoError(t, err)

	handler := NewHandler(orc, breakers, m, logger)
	mux := http.NewServeMux()
	handler.Routes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, orc
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestSubmitJobAccepted(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/jobs",
		`{"keyword":"x","mode":"generate","requestId":"r1","clientId":"c1"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decodeBody[SubmitResponse](t, resp)
	assert.NotEmpty(t, body.JobID)
	assert.Equal(t, "queued", body.Status)
	assert.Equal(t, "r1", body.RequestID)
}

func TestSubmitJobInvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/jobs", `{broken`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "invalid JSON body", body.Error)
}

func TestSubmitJobMissingFields(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/jobs",
		`{"keyword":"x","mode":"generate","clientId":"c1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[ErrorResponse](t, resp)
	assert.Contains(t, body.Error, "requestId is required")
}

func TestGetJobLifecycle(t *testing.T) {
	srv, orc := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/jobs",
		`{"keyword":"x","mode":"generate","requestId":"r1","clientId":"c1"}`)
	ack := decodeBody[SubmitResponse](t, resp)

	_, err := orc.WaitTerminal(ack.JobID, 5*time.Second)
	require.NoError(t, err)

	getResp, err := http.Get(srv.URL + "/api/v1/jobs/" + ack.JobID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, getResp.StatusCode)

	job := decodeBody[JobResponse](t, getResp)
	assert.Equal(t, ack.JobID, job.ID)
	assert.Equal(t, "completed", job.Status)
	assert.Equal(t, "r1", job.RequestID)
	assert.Equal(t, "c1", job.ClientID)
	assert.NotZero(t, job.CreatedAt)
	assert.NotZero(t, job.CompletedAt)
	assert.JSONEq(t, `{"html":"<p>ok</p>"}`, string(job.Result))
}

func TestGetJobNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/jobs/01UNKNOWN")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "job not found", body.Error)
}

func TestGetJobMissingID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/jobs")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "jobId required", body.Error)
}

func TestBreakersEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/breakers")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	states := decodeBody[[]breaker.State](t, resp)
	assert.Len(t, states, 3)
	for _, s := range states {
		assert.Equal(t, breaker.Closed, s.Status)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[HealthResponse](t, resp)
	assert.Equal(t, "healthy", body.Status)
}
