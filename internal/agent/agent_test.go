package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/events"
	"kitascrape-engine/internal/executor/sim"
	"kitascrape-engine/internal/httpapi"
)

type testAgent struct {
	srv *Server
	ts  *httptest.Server
}

func newTestAgent(t *testing.T) *testAgent {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := sim.New(sim.Options{
		Cities:   []string{"Stadt A", "Stadt B"},
		MinItems: 1,
		MaxItems: 1,
		Rand:     rand.New(rand.NewPCG(7, 7)),
		Logger:   log,
	})
	t.Cleanup(func() { _ = s.Close() })

	srv := New(s, Options{Logger: log})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Run(ctx) }()

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &testAgent{srv: srv, ts: ts}
}

func (a *testAgent) post(t *testing.T, path string, body any) (int, httpapi.APIError) {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	resp, err := http.Post(a.ts.URL+path, "application/json", rd)
	require.NoError(t, err)
	defer resp.Body.Close()
	var apiErr httpapi.APIError
	if resp.StatusCode >= 400 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	}
	return resp.StatusCode, apiErr
}

func (a *testAgent) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	before := a.srv.hub.Len()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(a.ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return a.srv.hub.Len() == before+1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func startBody(id string, delayMs int, units ...domain.UnitID) map[string]any {
	return map[string]any{
		"sessionId": id,
		"units":     units,
		"config":    domain.SessionConfig{DelayMs: delayMs},
	}
}

func TestHealth(t *testing.T) {
	a := newTestAgent(t)
	resp, err := http.Get(a.ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStart_Validation(t *testing.T) {
	a := newTestAgent(t)

	code, apiErr := a.post(t, "/api/start", startBody("", 0, "Bayern"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", apiErr.Error.Code)

	code, _ = a.post(t, "/api/start", startBody("s1", 0))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.post(t, "/api/start", startBody("s1", -5, "Bayern"))
	assert.Equal(t, http.StatusBadRequest, code)

	st, _, _ := a.srv.Status()
	assert.Equal(t, domain.StatusIdle, st)
}

func TestStart_StreamsToCompletion(t *testing.T) {
	a := newTestAgent(t)
	conn := a.dial(t)

	code, _ := a.post(t, "/api/start", startBody("s1", 0, "Bayern", "Berlin"))
	require.Equal(t, http.StatusAccepted, code)

	var kinds []events.Kind
	var last events.Event
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var env events.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		e, err := events.FromEnvelope(env)
		require.NoError(t, err)
		assert.Equal(t, "s1", e.SessionID)
		kinds = append(kinds, e.Kind)
		if e.Kind == events.KindStats {
			last = e
		}
		if e.Kind == events.KindStatus && e.Status == domain.StatusCompleted {
			break
		}
	}
	assert.Contains(t, kinds, events.KindData)
	assert.Contains(t, kinds, events.KindProgress)
	assert.Equal(t, domain.Stats{UnitsProcessed: 2, ItemsCollected: 4}, last.Stats)

	require.Eventually(t, func() bool {
		st, _, _ := a.srv.Status()
		return st == domain.StatusCompleted
	}, time.Second, 5*time.Millisecond)
	_, id, stats := a.srv.Status()
	assert.Equal(t, "s1", id)
	assert.Equal(t, 2, stats.UnitsProcessed)
}

func TestCommands_Transitions(t *testing.T) {
	a := newTestAgent(t)

	code, apiErr := a.post(t, "/api/pause", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_transition", apiErr.Error.Code)

	// Stopping nothing is harmless.
	code, _ = a.post(t, "/api/stop", nil)
	assert.Equal(t, http.StatusOK, code)

	// A long delay keeps the run inside its first unit.
	code, _ = a.post(t, "/api/start", startBody("s1", 10_000, "Bayern", "Berlin"))
	require.Equal(t, http.StatusAccepted, code)

	code, apiErr = a.post(t, "/api/start", startBody("s2", 0, "Hessen"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "session_active", apiErr.Error.Code)

	code, _ = a.post(t, "/api/pause", nil)
	assert.Equal(t, http.StatusOK, code)
	st, _, _ := a.srv.Status()
	assert.Equal(t, domain.StatusPaused, st)

	code, _ = a.post(t, "/api/pause", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = a.post(t, "/api/resume", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.post(t, "/api/stop", nil)
	assert.Equal(t, http.StatusOK, code)
	st, id, _ := a.srv.Status()
	assert.Equal(t, domain.StatusStopped, st)
	assert.Equal(t, "s1", id)

	// A new session may start once the previous one is over.
	code, _ = a.post(t, "/api/start", startBody("s2", 0, "Hessen"))
	assert.Equal(t, http.StatusAccepted, code)
}

func TestTrack_IgnoresForeignSession(t *testing.T) {
	a := newTestAgent(t)
	a.srv.mu.Lock()
	a.srv.status, a.srv.sessionID = domain.StatusRunning, "mine"
	a.srv.mu.Unlock()

	a.srv.track(events.StatsEvent("other", domain.Stats{ItemsCollected: 9}))
	a.srv.track(events.StatusEvent("other", domain.StatusCompleted))
	st, _, stats := a.srv.Status()
	assert.Equal(t, domain.StatusRunning, st)
	assert.Zero(t, stats.ItemsCollected)

	a.srv.track(events.ErrorEvent("mine", "boom"))
	st, _, _ = a.srv.Status()
	assert.Equal(t, domain.StatusErrored, st)
}

func TestResendStats_OnlyWhileLive(t *testing.T) {
	a := newTestAgent(t)
	ch := a.srv.hub.Subscribe()
	defer a.srv.hub.Unsubscribe(ch)

	require.NoError(t, a.srv.resendStats(context.Background()))
	assert.Empty(t, ch)

	a.srv.mu.Lock()
	a.srv.status, a.srv.sessionID, a.srv.stats = domain.StatusPaused, "s1", domain.Stats{UnitsProcessed: 3}
	a.srv.mu.Unlock()
	require.NoError(t, a.srv.resendStats(context.Background()))

	var env events.Envelope
	require.NoError(t, json.Unmarshal([]byte(<-ch), &env))
	e, err := events.FromEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, events.KindStats, e.Kind)
	assert.Equal(t, 3, e.Stats.UnitsProcessed)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAgent(t)
	a.post(t, "/api/pause", nil)

	resp, err := http.Get(a.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `kitascrape_agent_commands_total{command="pause",result="conflict"} 1`)
}
