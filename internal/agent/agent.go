// Package agent serves the cooperative simulator over HTTP so an engine can
// drive it as a remote executor. Commands arrive as JSON POSTs; events leave
// over a WebSocket as envelopes.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/events"
	"kitascrape-engine/internal/executor/sim"
	"kitascrape-engine/internal/metrics"
	"kitascrape-engine/internal/scheduler"
)

type Options struct {
	// StatsResend republishes the live counters periodically so a client that
	// reconnected mid-session catches up. Zero disables it.
	StatsResend time.Duration
	// SubscriberBuffer is the per-WebSocket queue; a subscriber that falls
	// this far behind is disconnected.
	SubscriberBuffer int
	Logger           *slog.Logger
	Metrics          *metrics.Agent
}

// Server owns the agent-side view of the session. The simulator asks it for
// the status at every unit boundary.
type Server struct {
	sim      *sim.Simulator
	hub      *events.Hub
	log      *slog.Logger
	metrics  *metrics.Agent
	opts     Options
	upgrader websocket.Upgrader

	mu        sync.Mutex
	status    domain.Status
	sessionID string
	stats     domain.Stats
}

func New(s *sim.Simulator, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewAgent()
	}
	srv := &Server{
		sim:     s,
		hub:     events.NewStrictHub(opts.SubscriberBuffer),
		log:     opts.Logger,
		metrics: opts.Metrics,
		opts:    opts,
		status:  domain.StatusIdle,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The agent is meant for trusted networks; any origin may subscribe.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	srv.hub.OnEvict(func() {
		opts.Metrics.SlowEvictions.Inc()
	})
	s.Bind(srv.query)
	return srv
}

func (s *Server) query(context.Context) (domain.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

// Status returns the agent's status and session id.
func (s *Server) Status() (domain.Status, string, domain.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.sessionID, s.stats
}

// Run pumps simulator events to subscribers until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go scheduler.Every(ctx, s.log, s.opts.StatsResend, "stats-resend", s.resendStats)

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-s.sim.Events():
			s.track(e)
			s.publish(e)
		}
	}
}

// track keeps the agent's own counters and status in step with the run.
func (s *Server) track(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.SessionID != s.sessionID {
		return
	}
	switch e.Kind {
	case events.KindStats:
		s.stats = e.Stats
	case events.KindStatus:
		if s.status.ValidateTransition(e.Status) == nil {
			s.status = e.Status
		}
	case events.KindError:
		if s.status.Live() {
			s.status = domain.StatusErrored
		}
	}
}

func (s *Server) publish(e events.Event) {
	b, err := json.Marshal(e.Envelope())
	if err != nil {
		s.log.Error("encode event", "kind", e.Kind, "err", err)
		return
	}
	s.hub.Publish(string(b))
	s.metrics.EventsSent.WithLabelValues(string(e.Kind)).Inc()
}

func (s *Server) resendStats(context.Context) error {
	s.mu.Lock()
	live, id, st := s.status.Live(), s.sessionID, s.stats
	s.mu.Unlock()
	if !live {
		return nil
	}
	s.publish(events.StatsEvent(id, st))
	return nil
}
