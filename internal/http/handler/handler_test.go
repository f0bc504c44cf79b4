package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/strategy-runner/internal/engine"
	"github.com/your-org/strategy-runner/internal/orchestrator"
	"github.com/your-org/strategy-runner/internal/report"
)

type fakeRunner struct {
	instances   map[string]orchestrator.InstanceInfo
	startErr    error
	lastOpts    orchestrator.StartOptions
	stopped     []string
	reset       []string
	deadLetters []orchestrator.DeadLetter
}

func (f *fakeRunner) Start(_ context.Context, strategyID string, opts orchestrator.StartOptions) (string, error) {
	f.lastOpts = opts
	if f.startErr != nil {
		return "", f.startErr
	}
	id := "inst-" + strategyID
	f.instances[id] = orchestrator.InstanceInfo{ID: id, StrategyID: strategyID, Status: orchestrator.StatusRunning}
	return id, nil
}

func (f *fakeRunner) Stop(id string) bool {
	info, ok := f.instances[id]
	if !ok || info.Status != orchestrator.StatusRunning {
		return false
	}
	info.Status = orchestrator.StatusStopped
	f.instances[id] = info
	f.stopped = append(f.stopped, id)
	return true
}

func (f *fakeRunner) Status(id string) (orchestrator.InstanceInfo, bool) {
	info, ok := f.instances[id]
	return info, ok
}

func (f *fakeRunner) Instances() []orchestrator.InstanceInfo {
	out := make([]orchestrator.InstanceInfo, 0, len(f.instances))
	for _, info := range f.instances {
		out = append(out, info)
	}
	return out
}

func (f *fakeRunner) DeadLetters() []orchestrator.DeadLetter { return f.deadLetters }

func (f *fakeRunner) ClearDeadLetters() int {
	n := len(f.deadLetters)
	f.deadLetters = nil
	return n
}

func (f *fakeRunner) ResetCircuitBreaker(id string) { f.reset = append(f.reset, id) }

func (f *fakeRunner) CircuitState(string) orchestrator.CircuitState {
	return orchestrator.CircuitState{ConsecutiveFailures: 2}
}

func (f *fakeRunner) RateWindowCount(string) int { return 7 }

type fakeSessions struct {
	views map[string]engine.SessionView
}

func (f *fakeSessions) ListSessions() []engine.SessionView {
	out := make([]engine.SessionView, 0, len(f.views))
	for _, v := range f.views {
		out = append(out, v)
	}
	return out
}

func (f *fakeSessions) GetSession(id string) (engine.SessionView, error) {
	v, ok := f.views[id]
	if !ok {
		return engine.SessionView{}, fmt.Errorf("%w: %s", engine.ErrSessionNotFound, id)
	}
	return v, nil
}

func (f *fakeSessions) Metrics(id string) (report.Metrics, error) {
	v, err := f.GetSession(id)
	return v.Metrics, err
}

func (f *fakeSessions) MarkToMarket(_ context.Context, id string) (engine.SessionView, error) {
	return f.GetSession(id)
}

func newRouter(runner *fakeRunner, sessions *fakeSessions) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", HealthCheckHandler)
	NewOrchestratorHandler(runner).RegisterRoutes(r)
	NewPnlHandler(sessions).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheckHandler(t *testing.T) {
	rec := do(t, newRouter(&fakeRunner{}, &fakeSessions{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReadinessHandler(t *testing.T) {
	var err error
	h := ReadinessHandler(func() error { return err })

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	err = errors.New("shutting down")
	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "shutting down")
}

func TestOrchestratorHandler_StartStop(t *testing.T) {
	runner := &fakeRunner{instances: map[string]orchestrator.InstanceInfo{}}
	router := newRouter(runner, &fakeSessions{})

	rec := do(t, router, http.MethodPost, "/strategies/dca/start", `{"owner_id":"alice","restart_delay":"10s","vars":{"step":1}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "inst-dca", started["instance_id"])
	assert.Equal(t, "alice", runner.lastOpts.OwnerID)
	assert.Equal(t, 10*time.Second, runner.lastOpts.RestartDelay)

	rec = do(t, router, http.MethodGet, "/instances/inst-dca", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info orchestrator.InstanceInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, orchestrator.StatusRunning, info.Status)

	rec = do(t, router, http.MethodPost, "/instances/inst-dca/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stopped":true}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/instances/inst-dca/stop", "")
	assert.JSONEq(t, `{"stopped":false}`, rec.Body.String(), "stop is idempotent")

	rec = do(t, router, http.MethodPost, "/instances/missing/stop", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, router, http.MethodGet, "/instances/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrchestratorHandler_StartErrors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		body string
		want int
	}{
		{name: "未登録", err: orchestrator.ErrStrategyNotFound, want: http.StatusNotFound},
		{name: "実行中", err: orchestrator.ErrAlreadyRunning, want: http.StatusConflict},
		{name: "上限", err: fmt.Errorf("%w: 10", orchestrator.ErrCapacityExceeded), want: http.StatusTooManyRequests},
		{name: "サーキット", err: orchestrator.ErrCircuitOpen, want: http.StatusServiceUnavailable},
		{name: "検証", err: engine.ErrValidation, want: http.StatusBadRequest},
		{name: "不正JSON", body: `{`, want: http.StatusBadRequest},
		{name: "不正な遅延", body: `{"restart_delay":"soon"}`, want: http.StatusBadRequest},
		{name: "未知のフィールド", body: `{"owner":"alice"}`, want: http.StatusBadRequest},
		{name: "手数料範囲外", body: `{"session":{"fee_pct":1.5}}`, want: http.StatusBadRequest},
		{name: "その他", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{instances: map[string]orchestrator.InstanceInfo{}, startErr: tc.err}
			rec := do(t, newRouter(runner, &fakeSessions{}), http.MethodPost, "/strategies/s/start", tc.body)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestOrchestratorHandler_GuardsAndDeadLetters(t *testing.T) {
	runner := &fakeRunner{
		instances:   map[string]orchestrator.InstanceInfo{},
		deadLetters: []orchestrator.DeadLetter{{ID: "dl-1", StrategyID: "s", Error: "rate limit exceeded"}},
	}
	router := newRouter(runner, &fakeSessions{})

	rec := do(t, router, http.MethodGet, "/strategies/s/guards", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rate_window_count":7`)
	assert.Contains(t, rec.Body.String(), `"consecutive_failures":2`)

	rec = do(t, router, http.MethodPost, "/strategies/s/circuit/reset", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"s"}, runner.reset)

	rec = do(t, router, http.MethodGet, "/dead-letters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var dls []orchestrator.DeadLetter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dls))
	require.Len(t, dls, 1)
	assert.Equal(t, "dl-1", dls[0].ID)

	rec = do(t, router, http.MethodDelete, "/dead-letters", "")
	assert.JSONEq(t, `{"cleared":1}`, rec.Body.String())
	assert.Empty(t, runner.deadLetters)
}

func TestPnlHandler(t *testing.T) {
	sessions := &fakeSessions{views: map[string]engine.SessionView{
		"p1": {ID: "p1", Active: true, Metrics: report.Metrics{TotalTrades: 3}},
	}}
	router := newRouter(&fakeRunner{}, sessions)

	rec := do(t, router, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []engine.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)

	rec = do(t, router, http.MethodGet, "/sessions/p1/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var m report.Metrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, 3, m.TotalTrades)

	rec = do(t, router, http.MethodPost, "/sessions/p1/mark", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
