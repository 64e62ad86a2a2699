package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sznuper/poolwatch/internal/alert"
	"github.com/sznuper/poolwatch/internal/gate"
)

type fakeGate struct {
	mu      sync.Mutex
	alerts  []alert.Alert
	outcome gate.Outcome
}

func (g *fakeGate) Dispatch(_ context.Context, a alert.Alert) gate.Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.alerts = append(g.alerts, a)
	if g.outcome == "" {
		return gate.Dispatched
	}
	return g.outcome
}

func (g *fakeGate) sent() []alert.Alert {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]alert.Alert(nil), g.alerts...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, h http.Handler, method, path, remote, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if remote != "" {
		req.RemoteAddr = remote
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChaosMode(t *testing.T) {
	g := &fakeGate{}
	at := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	s := New(g, Options{Now: func() time.Time { return at }}, quietLogger())

	rec := do(t, s.Handler(), http.MethodPost, "/chaos_mode/on", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Chaos mode activated", rec.Body.String())

	sent := g.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, alert.ClassInfo, sent[0].Class)
	assert.Equal(t, alert.KindManual, sent[0].Kind)
	assert.Equal(t, "Chaos mode triggered manually via HTTP", sent[0].Text)
	assert.Equal(t, at, sent[0].At)
	assert.Nil(t, sent[0].ErrorRate)
}

func TestChaosMode_SuppressedStillOK(t *testing.T) {
	g := &fakeGate{outcome: gate.Suppressed}
	s := New(g, Options{}, quietLogger())

	rec := do(t, s.Handler(), http.MethodPost, "/chaos_mode/on", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, g.sent(), 1)
}

func TestChaosMode_MethodNotAllowed(t *testing.T) {
	s := New(&fakeGate{}, Options{}, quietLogger())

	rec := do(t, s.Handler(), http.MethodGet, "/chaos_mode/on", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTriggerThrottle(t *testing.T) {
	g := &fakeGate{}
	s := New(g, Options{TriggerCooldown: time.Minute}, quietLogger())
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/chaos_mode/on", "10.0.0.1:4000", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/chaos_mode/on", "10.0.0.1:4001", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/alerts/test", "10.0.0.1:4002", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/chaos_mode/on", "10.0.0.2:4000", "").Code)

	assert.Len(t, g.sent(), 2, "throttled requests must not reach the gate")
}

func TestTriggerThrottleDisabled(t *testing.T) {
	g := &fakeGate{}
	s := New(g, Options{}, quietLogger())

	for range 3 {
		assert.Equal(t, http.StatusOK, do(t, s.Handler(), http.MethodPost, "/chaos_mode/on", "10.0.0.1:4000", "").Code)
	}
	assert.Len(t, g.sent(), 3)
}

func TestTestAlert(t *testing.T) {
	g := &fakeGate{outcome: gate.Suppressed}
	s := New(g, Options{}, quietLogger())

	rec := do(t, s.Handler(), http.MethodPost, "/alerts/test", "", `{"text":"deploy finished"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, gate.Suppressed, resp.Outcome)

	sent := g.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, resp.ID, sent[0].ID)
	assert.Equal(t, "deploy finished", sent[0].Text)
}

func TestTestAlert_DefaultText(t *testing.T) {
	g := &fakeGate{}
	s := New(g, Options{}, quietLogger())

	rec := do(t, s.Handler(), http.MethodPost, "/alerts/test", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, g.sent(), 1)
	assert.Equal(t, "Test alert triggered via HTTP", g.sent()[0].Text)
}

func TestTestAlert_BadBody(t *testing.T) {
	g := &fakeGate{}
	s := New(g, Options{}, quietLogger())

	rec := do(t, s.Handler(), http.MethodPost, "/alerts/test", "", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, g.sent())
}

func TestHealthz(t *testing.T) {
	s := New(&fakeGate{}, Options{}, quietLogger())

	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "poolwatch_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := New(&fakeGate{}, Options{Gatherer: reg}, quietLogger())
	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "poolwatch_test_total 1")

	without := New(&fakeGate{}, Options{}, quietLogger())
	assert.Equal(t, http.StatusNotFound, do(t, without.Handler(), http.MethodGet, "/metrics", "", "").Code)
}

func TestRun_Shutdown(t *testing.T) {
	s := New(&fakeGate{}, Options{Listen: "127.0.0.1:0"}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != nil }, 3*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
