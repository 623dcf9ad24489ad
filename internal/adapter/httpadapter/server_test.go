package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/msi-broadcast-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/msi-broadcast-etl/internal/domain"
	"github.com/couchcryptid/msi-broadcast-etl/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	readyErr error
	result   pipeline.RunResult
	runErr   error
	calls    int
}

func (m *mockRunner) CheckReadiness(_ context.Context) error { return m.readyErr }

func (m *mockRunner) Run(_ context.Context) (pipeline.RunResult, error) {
	m.calls++
	return m.result, m.runErr
}

func newTestServer(r *mockRunner) *httpadapter.Server {
	return httpadapter.NewServer(":0", r, time.Minute, slog.Default())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(&mockRunner{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(&mockRunner{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(&mockRunner{readyErr: fmt.Errorf("no run completed")})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no run completed", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&mockRunner{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRunReturnsSummary(t *testing.T) {
	runner := &mockRunner{result: pipeline.RunResult{
		RunID:     "run-1",
		Records:   make([]domain.OutputRecord, 3),
		Malformed: []domain.MalformedReport{{Text: "X"}},
		Notification: domain.Notification{
			Reports: []domain.MalformedReport{{Text: "X"}},
		},
		SourceErrors: map[string]error{
			"HYDROLANT": errors.New("timeout"),
			"HYDROARC":  errors.New("empty bulletin"),
		},
	}}
	srv := newTestServer(runner)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, runner.calls)

	var body httpadapter.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body.RunID)
	assert.Equal(t, 3, body.Records)
	assert.Equal(t, 1, body.Malformed)
	assert.True(t, body.Notification)
	assert.Equal(t, []string{"HYDROARC", "HYDROLANT"}, body.FailedSources)
	assert.Equal(t, "timeout", body.SourceErrors["HYDROLANT"])
	assert.Empty(t, body.Error)
}

func TestRunAllSourcesUnavailable(t *testing.T) {
	runner := &mockRunner{
		result: pipeline.RunResult{RunID: "run-2"},
		runErr: fmt.Errorf("%w: boom", pipeline.ErrAllSourcesUnavailable),
	}
	srv := newTestServer(runner)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body httpadapter.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "all bulletin sources unavailable")
}

func TestRunSinkFailure(t *testing.T) {
	runner := &mockRunner{
		result: pipeline.RunResult{RunID: "run-3", Records: make([]domain.OutputRecord, 1)},
		runErr: errors.New("sink csv: disk full"),
	}
	srv := newTestServer(runner)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body httpadapter.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Records)
	assert.Equal(t, "sink csv: disk full", body.Error)
}

func TestRunRejectsGet(t *testing.T) {
	runner := &mockRunner{}
	srv := newTestServer(runner)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/run", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Zero(t, runner.calls)
}
