package session

import (
	"math"

	"kitascrape-engine/internal/domain"
)

// Aggregator holds the counters, result buffer, progress and activity log of
// the live session. It has no locking of its own: only the controller loop
// touches it.
type Aggregator struct {
	progress float64
	label    string
	stats    domain.Stats
	items    []domain.Item
	log      []domain.LogEntry
}

// AggregateSnapshot is a deep copy of the aggregator at one instant.
type AggregateSnapshot struct {
	Progress float64
	Label    string
	Stats    domain.Stats
	Items    []domain.Item
	Log      []domain.LogEntry
}

func (a *Aggregator) Reset() {
	*a = Aggregator{}
}

// AppendItems extends the result buffer, preserving order. Duplicates are kept.
func (a *Aggregator) AppendItems(items []domain.Item) {
	a.items = append(a.items, items...)
}

// SetStats replaces the counters with the executor's authoritative totals.
func (a *Aggregator) SetStats(st domain.Stats) {
	a.stats = st
}

// SetProgress clamps p to [0,100]. With monotonic set, the percentage never
// moves backwards. An empty label leaves the current one in place.
func (a *Aggregator) SetProgress(p float64, label string, monotonic bool) {
	p = clampPercent(p)
	if !monotonic || p > a.progress {
		a.progress = p
	}
	if label != "" {
		a.label = label
	}
}

func (a *Aggregator) ForceProgress(p float64) {
	a.progress = clampPercent(p)
}

func (a *Aggregator) ClearLabel() {
	a.label = ""
}

func (a *Aggregator) AppendLog(e domain.LogEntry) {
	a.log = append(a.log, e)
}

// LoadView replaces items and counters with a stored result set.
func (a *Aggregator) LoadView(items []domain.Item, st domain.Stats) {
	a.items = domain.CloneItems(items)
	a.stats = st
	a.label = ""
}

func (a *Aggregator) ItemCount() int { return len(a.items) }

func (a *Aggregator) Stats() domain.Stats { return a.stats }

func (a *Aggregator) Snapshot() AggregateSnapshot {
	s := AggregateSnapshot{
		Progress: a.progress,
		Label:    a.label,
		Stats:    a.stats,
		Items:    domain.CloneItems(a.items),
	}
	if a.log != nil {
		s.Log = make([]domain.LogEntry, len(a.log))
		copy(s.Log, a.log)
	}
	if s.Items == nil {
		s.Items = []domain.Item{}
	}
	return s
}

func clampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
