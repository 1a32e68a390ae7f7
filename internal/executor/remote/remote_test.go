package remote_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitascrape-engine/internal/agent"
	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/events"
	"kitascrape-engine/internal/executor/remote"
	"kitascrape-engine/internal/executor/sim"
	"kitascrape-engine/internal/httpapi"
)

type countingMetrics struct {
	connected atomic.Bool
	attempts  atomic.Int32
	exhausted atomic.Int32
}

func (m *countingMetrics) SetConnected(up bool)   { m.connected.Store(up) }
func (m *countingMetrics) IncReconnectAttempts()  { m.attempts.Add(1) }
func (m *countingMetrics) IncReconnectExhausted() { m.exhausted.Add(1) }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newClient(t *testing.T, baseURL string, m *countingMetrics) *remote.Client {
	t.Helper()
	c, err := remote.New(remote.Options{
		BaseURL:        baseURL,
		RequestTimeout: 2 * time.Second,
		Reconnect: remote.ReconnectPolicy{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
		},
		Logger:  quiet(),
		Metrics: m,
	})
	require.NoError(t, err)
	return c
}

func runClient(t *testing.T, c *remote.Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func newAgentServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := sim.New(sim.Options{
		Cities:   []string{"Stadt A"},
		MinItems: 2,
		MaxItems: 2,
		Rand:     rand.New(rand.NewPCG(3, 4)),
		Logger:   quiet(),
	})
	t.Cleanup(func() { _ = s.Close() })
	a := agent.New(s, agent.Options{Logger: quiet()})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = a.Run(ctx) }()

	ts := httptest.NewServer(a.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func subscribers(t *testing.T, base string) int {
	t.Helper()
	resp, err := http.Get(base + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Subscribers int `json:"subscribers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Subscribers
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := remote.New(remote.Options{BaseURL: "ftp://example.org"})
	assert.Error(t, err)
	_, err = remote.New(remote.Options{BaseURL: "::"})
	assert.Error(t, err)
}

func TestStart_RequiresConnection(t *testing.T) {
	ts := newAgentServer(t)
	c := newClient(t, ts.URL, &countingMetrics{})

	assert.False(t, c.Connected())
	err := c.Start(context.Background(), "s1", []domain.UnitID{"Bayern"}, domain.SessionConfig{})
	assert.ErrorIs(t, err, domain.ErrConnectivity)
}

func TestEndToEnd_EventsFlow(t *testing.T) {
	ts := newAgentServer(t)
	m := &countingMetrics{}
	c := newClient(t, ts.URL, m)
	runClient(t, c)

	require.Eventually(t, c.Connected, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.connected.Load())
	require.NoError(t, c.Health(context.Background()))

	// The agent subscribes the socket right after the handshake.
	require.Eventually(t, func() bool { return subscribers(t, ts.URL) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Start(context.Background(), "s1", []domain.UnitID{"Bayern", "Berlin"}, domain.SessionConfig{}))

	var items int
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case e := <-c.Events():
			assert.Equal(t, "s1", e.SessionID)
			if e.Kind == events.KindData {
				items += len(e.Items)
			}
			done = e.Kind == events.KindStatus && e.Status == domain.StatusCompleted
		case <-timeout:
			t.Fatal("no completion event")
		}
	}
	assert.Equal(t, 4, items)

	// The agent refuses to pause a finished session.
	var execErr *domain.ExecutorError
	require.ErrorAs(t, c.Pause(context.Background()), &execErr)
	assert.Contains(t, execErr.Message, "cannot pause")
}

func TestCommand_Non2xxBecomesExecutorError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/stop":
			httpapi.WriteError(w, r, http.StatusInternalServerError, "internal_error", "worker crashed")
		default:
			http.Error(w, "nope", http.StatusTeapot)
		}
	}))
	defer ts.Close()
	c := newClient(t, ts.URL, &countingMetrics{})

	var execErr *domain.ExecutorError
	require.ErrorAs(t, c.Stop(context.Background()), &execErr)
	assert.Equal(t, "worker crashed", execErr.Message)

	require.ErrorAs(t, c.Resume(context.Background()), &execErr)
	assert.Equal(t, "nope", execErr.Message)
}

func TestCommand_TransportErrorIsConnectivity(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := newClient(t, url, &countingMetrics{})
	assert.ErrorIs(t, c.Pause(context.Background()), domain.ErrConnectivity)
	assert.ErrorIs(t, c.Health(context.Background()), domain.ErrConnectivity)
}

func TestRun_GivesUpThenManualReconnect(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	m := &countingMetrics{}
	c := newClient(t, url, m)
	runClient(t, c)

	require.Eventually(t, func() bool { return m.exhausted.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, m.attempts.Load())
	assert.False(t, c.Connected())

	c.Reconnect()
	require.Eventually(t, func() bool { return m.exhausted.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 4, m.attempts.Load())
}

func TestRun_ConnectionLossClearsFlag(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var served atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only the first dial succeeds.
		if served.Add(1) > 1 {
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteJSON(events.StatsEvent("s1", domain.Stats{UnitsProcessed: 1}).Envelope())
		_ = conn.WriteJSON(events.Envelope{SessionID: "s1", Type: "mystery"})
		_ = conn.Close()
	}))
	defer ts.Close()

	m := &countingMetrics{}
	c := newClient(t, ts.URL, m)
	runClient(t, c)

	select {
	case e := <-c.Events():
		assert.Equal(t, events.KindStats, e.Kind)
		assert.Equal(t, 1, e.Stats.UnitsProcessed)
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	require.Eventually(t, func() bool { return m.exhausted.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, c.Connected())
	assert.False(t, m.connected.Load())
}
