// Package metrics exposes engine and agent instrumentation to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kitascrape-engine/internal/domain"
)

const namespace = "kitascrape"

// Engine implements the session, history and remote executor metric hooks.
type Engine struct {
	Commands        *prometheus.CounterVec // labels: command, result
	EventsApplied   *prometheus.CounterVec // labels: kind
	EventsDropped   *prometheus.CounterVec // labels: kind
	Finalized       *prometheus.CounterVec // labels: status
	Progress        prometheus.Gauge
	HistoryOps      *prometheus.CounterVec // labels: op, result
	HistorySize     prometheus.Gauge
	Connected       prometheus.Gauge
	ReconnectTotal  prometheus.Counter
	ReconnectFailed prometheus.Counter

	reg *prometheus.Registry
}

// NewEngine registers the engine metrics on a fresh registry, along with the
// Go and process collectors.
func NewEngine() *Engine {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Engine{
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Session commands handled, by command and result",
		}, []string{"command", "result"}),
		EventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_applied_total",
			Help:      "Executor events applied to the live session",
		}, []string{"kind"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Executor events ignored as stale or invalid",
		}, []string{"kind"}),
		Finalized: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finalized_total",
			Help:      "Sessions written to the history, by terminal status",
		}, []string{"status"}),
		Progress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_progress_percent",
			Help:      "Progress of the current session",
		}),
		HistoryOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_persist_total",
			Help:      "History load and save attempts, by result",
		}, []string{"op", "result"}),
		HistorySize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_entries",
			Help:      "Entries currently held in the history",
		}),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executor_connected",
			Help:      "1 while the executor event channel is up",
		}),
		ReconnectTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executor_reconnect_attempts_total",
			Help:      "Attempts to re-open the executor event channel",
		}),
		ReconnectFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executor_reconnect_exhausted_total",
			Help:      "Times the reconnect budget ran out",
		}),
		reg: reg,
	}
}

func (m *Engine) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Engine) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Engine) ObserveCommand(name string, err error) {
	m.Commands.WithLabelValues(name, resultLabel(err)).Inc()
}

func (m *Engine) ObserveEvent(kind string, applied bool) {
	if applied {
		m.EventsApplied.WithLabelValues(kind).Inc()
		return
	}
	m.EventsDropped.WithLabelValues(kind).Inc()
}

func (m *Engine) ObserveFinalize(status domain.Status) {
	m.Finalized.WithLabelValues(string(status)).Inc()
}

func (m *Engine) SetProgress(p float64) { m.Progress.Set(p) }

func (m *Engine) ObservePersist(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.HistoryOps.WithLabelValues(op, result).Inc()
}

func (m *Engine) SetHistorySize(n int) { m.HistorySize.Set(float64(n)) }

func (m *Engine) SetConnected(up bool) {
	if up {
		m.Connected.Set(1)
		return
	}
	m.Connected.Set(0)
}

func (m *Engine) IncReconnectAttempts() { m.ReconnectTotal.Inc() }
func (m *Engine) IncReconnectExhausted() { m.ReconnectFailed.Inc() }

// resultLabel keeps the label set small and stable.
func resultLabel(err error) string {
	var execErr *domain.ExecutorError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrConnectivity):
		return "connectivity"
	case errors.Is(err, domain.ErrSessionActive), errors.Is(err, domain.ErrInvalidTransition):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.As(err, &execErr):
		return "executor"
	default:
		return "error"
	}
}
