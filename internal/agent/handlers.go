package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/executor/remote"
	"kitascrape-engine/internal/httpapi"
)

var validate = validator.New()

// Routes returns the agent API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httpapi.RequestID, httpapi.Recover(s.log), httpapi.AccessLog(s.log))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/start", s.handleStart)
	r.Post("/api/pause", s.handlePause)
	r.Post("/api/resume", s.handleResume)
	r.Post("/api/stop", s.handleStop)
	r.Get("/ws", s.handleWS)
	r.Handle("/metrics", s.metrics.Handler())
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": "Executor agent is running"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, id, stats := s.Status()
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"status":      st,
		"sessionId":   id,
		"stats":       stats,
		"subscribers": s.hub.Len(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req remote.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, "start", fmt.Errorf("%w: invalid JSON body: %v", domain.ErrValidation, err))
		return
	}
	req.Units = domain.NormalizeUnits(req.Units)
	switch {
	case req.SessionID == "":
		s.fail(w, r, "start", fmt.Errorf("%w: sessionId is required", domain.ErrValidation))
		return
	case len(req.Units) == 0:
		s.fail(w, r, "start", fmt.Errorf("%w: no units selected", domain.ErrValidation))
		return
	}
	if err := validate.Struct(req.Config); err != nil {
		s.fail(w, r, "start", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	s.mu.Lock()
	if s.status.Live() {
		s.mu.Unlock()
		s.fail(w, r, "start", domain.ErrSessionActive)
		return
	}
	prev := s.status
	s.status, s.sessionID, s.stats = domain.StatusRunning, req.SessionID, domain.Stats{}
	s.mu.Unlock()

	if err := s.sim.Start(r.Context(), req.SessionID, req.Units, req.Config); err != nil {
		s.mu.Lock()
		s.status = prev
		s.mu.Unlock()
		s.fail(w, r, "start", err)
		return
	}
	s.log.Info("session started", "session_id", req.SessionID, "units", len(req.Units))
	s.metrics.ObserveCommand("start", nil)
	httpapi.WriteJSON(w, http.StatusAccepted, map[string]any{
		"message":   "Collection started",
		"status":    domain.StatusRunning,
		"sessionId": req.SessionID,
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "pause", domain.StatusRunning, domain.StatusPaused, s.sim.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "resume", domain.StatusPaused, domain.StatusRunning, s.sim.Resume)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if !s.status.Live() {
		st := s.status
		s.mu.Unlock()
		s.metrics.ObserveCommand("stop", nil)
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{"message": "Nothing to stop", "status": st})
		return
	}
	s.status = domain.StatusStopped
	s.mu.Unlock()

	_ = s.sim.Stop(r.Context())
	s.metrics.ObserveCommand("stop", nil)
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"message": "Collection stopped", "status": domain.StatusStopped})
}

// transition moves the agent from one status to another and then notifies the
// simulator.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, name string, from, to domain.Status, notify func(context.Context) error) {
	s.mu.Lock()
	if s.status != from {
		err := fmt.Errorf("%w: cannot %s while %s", domain.ErrInvalidTransition, name, s.status)
		s.mu.Unlock()
		s.fail(w, r, name, err)
		return
	}
	s.status = to
	s.mu.Unlock()

	_ = notify(r.Context())
	s.metrics.ObserveCommand(name, nil)
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"status": to})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, name string, err error) {
	s.metrics.ObserveCommand(name, err)
	s.log.Warn("command rejected", "command", name, "err", err)
	httpapi.WriteDomainError(w, r, err)
}

const writeWait = 5 * time.Second

// handleWS streams event envelopes to one subscriber until it disconnects or
// falls behind.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)
	s.metrics.Subscribers.Inc()
	defer s.metrics.Subscribers.Dec()
	s.log.Info("event subscriber connected", "remote", r.RemoteAddr)

	// Drain reads so control frames (ping, close) are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			s.log.Info("event subscriber left", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				s.log.Warn("event subscriber too slow, disconnecting", "remote", r.RemoteAddr)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
	}
}
