// Package remote drives an executor agent over HTTP and receives its events
// over a WebSocket.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/events"
	"kitascrape-engine/internal/executor"
	"kitascrape-engine/internal/httpapi"
)

// Metrics receives connectivity observations.
type Metrics interface {
	SetConnected(up bool)
	IncReconnectAttempts()
	IncReconnectExhausted()
}

type ReconnectPolicy struct {
	// MaxAttempts counts dials per connect cycle, the first one included.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	PingInterval   time.Duration
	Reconnect      ReconnectPolicy
	EventBuffer    int

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
	Metrics    Metrics
}

func (o *Options) defaults() {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.Reconnect.MaxAttempts <= 0 {
		o.Reconnect.MaxAttempts = 5
	}
	if o.Reconnect.InitialDelay <= 0 {
		o.Reconnect.InitialDelay = 500 * time.Millisecond
	}
	if o.Reconnect.MaxDelay < o.Reconnect.InitialDelay {
		o.Reconnect.MaxDelay = 5 * time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 256
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Client implements executor.Executor against a remote agent. Connectivity
// tracks the event channel only and never touches session state.
type Client struct {
	opts   Options
	base   *url.URL
	wsURL  string
	log    *slog.Logger
	events chan events.Event

	connected atomic.Bool
	// kick asks a supervisor that gave up to try again.
	kick chan struct{}
}

var _ executor.Executor = (*Client)(nil)

func New(opts Options) (*Client, error) {
	opts.defaults()
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse executor url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("executor url %q: scheme must be http or https", opts.BaseURL)
	}
	ws := *base
	ws.Scheme = "ws"
	if base.Scheme == "https" {
		ws.Scheme = "wss"
	}
	ws.Path += "/ws"

	return &Client{
		opts:   opts,
		base:   base,
		wsURL:  ws.String(),
		log:    opts.Logger.With("executor", base.Host),
		events: make(chan events.Event, opts.EventBuffer),
		kick:   make(chan struct{}, 1),
	}, nil
}

func (c *Client) Events() <-chan events.Event { return c.events }

func (c *Client) Connected() bool { return c.connected.Load() }

// Reconnect asks for a fresh connect cycle. It is a no-op while connected or
// while a cycle is already running.
func (c *Client) Reconnect() {
	if c.Connected() {
		return
	}
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Run keeps the event channel open until ctx is done. Each connect cycle
// retries with exponential backoff up to the configured attempts; after that
// it waits for Reconnect.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := c.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.log.Error("executor unreachable, waiting for manual reconnect",
				"attempts", c.opts.Reconnect.MaxAttempts, "err", err)
			if c.opts.Metrics != nil {
				c.opts.Metrics.IncReconnectExhausted()
			}
			select {
			case <-ctx.Done():
				return nil
			case <-c.kick:
				c.log.Info("manual reconnect requested")
				continue
			}
		}
		c.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.Reconnect.InitialDelay
	b.MaxInterval = c.opts.Reconnect.MaxDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.Reconnect.MaxAttempts-1)), ctx)

	var conn *websocket.Conn
	attempt := 0
	op := func() error {
		attempt++
		if c.opts.Metrics != nil {
			c.opts.Metrics.IncReconnectAttempts()
		}
		ws, resp, err := c.opts.Dialer.DialContext(ctx, c.wsURL, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return err
		}
		conn = ws
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.log.Warn("executor connect failed", "attempt", attempt, "retry_in", next, "err", err)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return conn, nil
}

// serve reads envelopes until the connection drops.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.setConnected(true)
	c.log.Info("executor connected", "url", c.wsURL)

	done := make(chan struct{})
	defer func() {
		close(done)
		_ = conn.Close()
		c.setConnected(false)
	}()

	// Closing the conn is the only way to unblock ReadJSON.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	if iv := c.opts.PingInterval; iv > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(2 * iv))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * iv))
		})
		go c.keepalive(conn, iv, done)
	}

	for {
		var env events.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil {
				c.log.Warn("executor connection lost", "err", err)
			}
			return
		}
		if iv := c.opts.PingInterval; iv > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(2 * iv))
		}
		e, err := events.FromEnvelope(env)
		if err != nil {
			c.log.Warn("skipping undecodable executor event", "type", env.Type, "err", err)
			continue
		}
		select {
		case c.events <- e:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) keepalive(conn *websocket.Conn, iv time.Duration, done <-chan struct{}) {
	t := time.NewTicker(iv)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(iv/2)); err != nil {
				c.log.Debug("ping failed", "err", err)
				return
			}
		}
	}
}

func (c *Client) setConnected(up bool) {
	c.connected.Store(up)
	if c.opts.Metrics != nil {
		c.opts.Metrics.SetConnected(up)
	}
}

// StartRequest is the body of POST /api/start.
type StartRequest struct {
	SessionID string               `json:"sessionId"`
	Units     []domain.UnitID      `json:"units"`
	Config    domain.SessionConfig `json:"config"`
}

func (c *Client) Start(ctx context.Context, sessionID string, units []domain.UnitID, cfg domain.SessionConfig) error {
	if !c.Connected() {
		return fmt.Errorf("%w: event channel is down", domain.ErrConnectivity)
	}
	return c.post(ctx, "/api/start", StartRequest{SessionID: sessionID, Units: units, Config: cfg})
}

func (c *Client) Pause(ctx context.Context) error  { return c.post(ctx, "/api/pause", nil) }
func (c *Client) Resume(ctx context.Context) error { return c.post(ctx, "/api/resume", nil) }
func (c *Client) Stop(ctx context.Context) error   { return c.post(ctx, "/api/stop", nil) }

// Health reports whether the agent answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/health"), nil)
	if err != nil {
		return err
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectivity, err)
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrConnectivity, req.Method, path, err)
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path += path
	return u.String()
}

// checkResponse turns a non-2xx reply into an ExecutorError carrying the
// agent's message.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr httpapi.APIError
	msg := strings.TrimSpace(string(b))
	if err := json.Unmarshal(b, &apiErr); err == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	if msg == "" {
		msg = resp.Status
	}
	return &domain.ExecutorError{Message: msg}
}
