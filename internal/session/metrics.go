package session

import "kitascrape-engine/internal/domain"

// Metrics receives controller observations.
type Metrics interface {
	ObserveCommand(name string, err error)
	ObserveEvent(kind string, applied bool)
	ObserveFinalize(status domain.Status)
	SetProgress(p float64)
}

// HistoryRecorder takes finalized entries. Add must not fail the caller:
// persistence problems stay behind it.
type HistoryRecorder interface {
	Add(entry domain.HistoryEntry)
	Get(id string) (domain.HistoryEntry, bool)
}

// Notifier is told about every applied change.
type Notifier interface {
	Publish(evt string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCommand(string, error)       {}
func (nopMetrics) ObserveEvent(string, bool)          {}
func (nopMetrics) ObserveFinalize(domain.Status)      {}
func (nopMetrics) SetProgress(float64)                {}

type nopNotifier struct{}

func (nopNotifier) Publish(string) {}
