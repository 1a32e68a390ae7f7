package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Agent instruments the executor agent.
type Agent struct {
	Subscribers    prometheus.Gauge
	EventsSent     *prometheus.CounterVec // labels: kind
	SlowEvictions  prometheus.Counter
	CommandsServed *prometheus.CounterVec // labels: command, result

	reg *prometheus.Registry
}

func NewAgent() *Agent {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Agent{
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "ws_subscribers",
			Help:      "Connected WebSocket event subscribers",
		}),
		EventsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "events_published_total",
			Help:      "Executor events fanned out to subscribers",
		}, []string{"kind"}),
		SlowEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "subscriber_evictions_total",
			Help:      "Subscribers dropped for falling behind",
		}),
		CommandsServed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "commands_total",
			Help:      "Control commands received, by result",
		}, []string{"command", "result"}),
		reg: reg,
	}
}

func (m *Agent) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Agent) ObserveCommand(name string, err error) {
	m.CommandsServed.WithLabelValues(name, resultLabel(err)).Inc()
}
