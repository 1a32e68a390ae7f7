// Package sim is the cooperative in-process executor. It walks the selected
// units one at a time, generating plausible listings, and only honours pause
// and stop at unit boundaries.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"kitascrape-engine/internal/domain"
	"kitascrape-engine/internal/events"
	"kitascrape-engine/internal/executor"
	"kitascrape-engine/internal/regions"
)

var DefaultCities = []string{"Stadt A", "Stadt B", "Stadt C", "Stadt D"}

// Options tunes the simulator. Zero values pick the defaults.
type Options struct {
	Cities   []string
	MinItems int
	MaxItems int
	// FailureRate is the probability that one simulated request fails.
	FailureRate float64
	// MaxLatency bounds the random per-request latency added on top of the delay.
	MaxLatency time.Duration
	// EventBuffer sizes the event channel.
	EventBuffer int

	Rand   *rand.Rand
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if len(o.Cities) == 0 {
		o.Cities = DefaultCities
	}
	if o.MinItems <= 0 {
		o.MinItems = 3
	}
	if o.MaxItems < o.MinItems {
		o.MaxItems = o.MinItems + 7
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 256
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6b697461))
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Simulator implements executor.Executor in-process.
type Simulator struct {
	opts   Options
	events chan events.Event

	mu        sync.Mutex
	query     executor.StatusQuery
	base      context.Context
	closeBase context.CancelFunc
	runCancel context.CancelFunc

	// wake nudges a paused run to re-check the status.
	wake chan struct{}

	rngMu sync.Mutex
}

var _ executor.Executor = (*Simulator)(nil)

// New creates a simulator. Bind must be called before Start.
func New(opts Options) *Simulator {
	opts.defaults()
	base, cancel := context.WithCancel(context.Background())
	return &Simulator{
		opts:      opts,
		events:    make(chan events.Event, opts.EventBuffer),
		base:      base,
		closeBase: cancel,
		wake:      make(chan struct{}, 1),
	}
}

// Bind sets the status query consulted at unit boundaries.
func (s *Simulator) Bind(q executor.StatusQuery) {
	s.mu.Lock()
	s.query = q
	s.mu.Unlock()
}

func (s *Simulator) Events() <-chan events.Event { return s.events }

func (s *Simulator) Connected() bool { return true }

// Start launches a run. A previous run that is still finishing its in-flight
// unit is cancelled.
func (s *Simulator) Start(_ context.Context, sessionID string, units []domain.UnitID, cfg domain.SessionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.query == nil {
		return &domain.ExecutorError{Message: "simulator has no status query bound"}
	}
	if err := s.base.Err(); err != nil {
		return &domain.ExecutorError{Message: "simulator closed"}
	}
	if s.runCancel != nil {
		s.runCancel()
	}
	ctx, cancel := context.WithCancel(s.base)
	s.runCancel = cancel

	r := &run{
		sim:       s,
		query:     s.query,
		sessionID: sessionID,
		units:     append([]domain.UnitID(nil), units...),
		cfg:       cfg,
		pacer:     newHostLimiter(cfg.Delay()),
	}
	go r.loop(ctx)
	return nil
}

func (s *Simulator) Pause(context.Context) error { return nil }

func (s *Simulator) Resume(context.Context) error {
	s.nudge()
	return nil
}

func (s *Simulator) Stop(context.Context) error {
	s.nudge()
	return nil
}

// Close cancels any run and rejects further starts.
func (s *Simulator) Close() error {
	s.closeBase()
	return nil
}

func (s *Simulator) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Simulator) intN(lo, hi int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	if hi <= lo {
		return lo
	}
	return lo + s.opts.Rand.IntN(hi-lo+1)
}

func (s *Simulator) chance(p float64) bool {
	if p <= 0 {
		return false
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.opts.Rand.Float64() < p
}

func (s *Simulator) latency() time.Duration {
	if s.opts.MaxLatency <= 0 {
		return 0
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return time.Duration(s.opts.Rand.Int64N(int64(s.opts.MaxLatency)))
}

// run is one session's pass over its units.
type run struct {
	sim       *Simulator
	query     executor.StatusQuery
	sessionID string
	units     []domain.UnitID
	cfg       domain.SessionConfig
	pacer     *hostLimiter
	stats     domain.Stats
}

var errRequestFailed = errors.New("upstream request failed")

func (r *run) loop(ctx context.Context) {
	log := r.sim.opts.Logger.With("session_id", r.sessionID)
	cities := r.sim.opts.Cities
	totalSteps := len(r.units) * len(cities)
	step := 0

	r.log(ctx, domain.LevelInfo, fmt.Sprintf("Starting collection of %d region(s)", len(r.units)))

	for i, unit := range r.units {
		if !r.checkpoint(ctx) {
			log.Info("simulator halted at unit boundary", "unit", unit, "index", i)
			r.log(ctx, domain.LevelWarning, fmt.Sprintf("Collection halted before %s", unit))
			return
		}
		r.log(ctx, domain.LevelInfo, fmt.Sprintf("Processing %s", unit))

		for j, city := range cities {
			label := fmt.Sprintf("%s → %s", unit, city)
			r.emit(ctx, events.ProgressEvent(r.sessionID, percent(step, totalSteps), label))

			items, err := r.fetchCity(ctx, i, j, unit, city)
			if ctx.Err() != nil {
				return
			}
			step++
			if err != nil {
				r.log(ctx, domain.LevelWarning, fmt.Sprintf("  %s skipped: %v", city, err))
				continue
			}
			r.stats.ItemsCollected += len(items)
			r.emit(ctx, events.DataEvent(r.sessionID, items))
			r.log(ctx, domain.LevelSuccess, fmt.Sprintf("  %d kitas found in %s", len(items), city))
		}

		r.stats.UnitsProcessed++
		r.emit(ctx, events.StatsEvent(r.sessionID, r.stats))
		r.emit(ctx, events.ProgressEvent(r.sessionID, percent(step, totalSteps), string(unit)))
		r.log(ctx, domain.LevelSuccess, fmt.Sprintf("%s done", unit))
	}

	// A stop that landed during the last unit wins over completion.
	if !r.checkpoint(ctx) {
		r.log(ctx, domain.LevelWarning, "Collection halted before completion")
		return
	}
	r.log(ctx, domain.LevelSuccess, fmt.Sprintf("Collection finished: %d kitas in %d region(s)",
		r.stats.ItemsCollected, r.stats.UnitsProcessed))
	r.emit(ctx, events.ProgressEvent(r.sessionID, 100, "done"))
	r.emit(ctx, events.StatusEvent(r.sessionID, domain.StatusCompleted))
	log.Info("simulator run completed", "items", r.stats.ItemsCollected, "errors", r.stats.ErrorCount)
}

// checkpoint blocks while the session is paused and reports whether work may
// continue.
func (r *run) checkpoint(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		st, err := r.query(ctx)
		if err != nil {
			return false
		}
		switch st {
		case domain.StatusRunning:
			return true
		case domain.StatusPaused:
			select {
			case <-r.sim.wake:
			case <-ctx.Done():
				return false
			}
		default:
			return false
		}
	}
}

// fetchCity simulates loading one city listing, retrying failed attempts.
func (r *run) fetchCity(ctx context.Context, i, j int, unit domain.UnitID, city string) ([]domain.Item, error) {
	cityURL := regions.URL(unit) + "/" + regions.Slug(domain.UnitID(city))

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		lastErr = r.attempt(ctx, cityURL)
		if lastErr == nil {
			return r.makeItems(i, j, unit, city, cityURL), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.stats.ErrorCount++
		r.log(ctx, domain.LevelWarning, fmt.Sprintf("  attempt %d/%d for %s failed: %v",
			attempt+1, r.cfg.MaxRetries+1, city, lastErr))
	}
	return nil, lastErr
}

func (r *run) attempt(ctx context.Context, rawURL string) error {
	actx := ctx
	if t := r.cfg.Timeout(); t > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	if err := r.pacer.WaitURL(actx, rawURL); err != nil {
		return fmt.Errorf("rate wait: %w", err)
	}
	if d := r.sim.latency(); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-actx.Done():
			return fmt.Errorf("timeout after %s", r.cfg.Timeout())
		}
	}
	if r.sim.chance(r.sim.opts.FailureRate) {
		return errRequestFailed
	}
	return nil
}

var (
	streets   = []string{"Hauptstraße", "Bahnhofstraße", "Schulstraße", "Parkweg"}
	ageRanges = []string{"0-3 Jahre", "3-6 Jahre", "0-6 Jahre"}
)

func (r *run) makeItems(i, j int, unit domain.UnitID, city, cityURL string) []domain.Item {
	n := r.sim.intN(r.sim.opts.MinItems, r.sim.opts.MaxItems)
	host := strings.ToLower(strings.ReplaceAll(city, " ", ""))
	prefix := r.sessionID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}

	items := make([]domain.Item, 0, n)
	for k := 0; k < n; k++ {
		id := fmt.Sprintf("%s-%d-%d-%d", prefix, i, j, k)
		it := domain.Item{
			ID:          id,
			Name:        fmt.Sprintf("Kita %s %d", city, k+1),
			AddressLine: fmt.Sprintf("%s %d", streets[k%len(streets)], r.sim.intN(1, 100)),
			PostalCode:  fmt.Sprintf("%05d", r.sim.intN(10000, 99999)),
			City:        city,
			RegionID:    unit,
			SourceURL:   cityURL + "/" + id,
			Capacity:    r.sim.intN(20, 119),
			AgeRange:    ageRanges[r.sim.intN(0, len(ageRanges)-1)],
		}
		if r.cfg.ExtractDetails {
			it.Phone = fmt.Sprintf("+49 %d %d", r.sim.intN(1000, 9999), r.sim.intN(10000, 99999))
			it.Email = fmt.Sprintf("kontakt@kita-%s-%d.de", host, k+1)
			it.Website = fmt.Sprintf("www.kita-%s-%d.de", host, k+1)
		}
		items = append(items, it)
	}
	return items
}

func (r *run) log(ctx context.Context, level domain.LogLevel, msg string) {
	r.emit(ctx, events.LogEvent(r.sessionID, level, msg))
}

func (r *run) emit(ctx context.Context, e events.Event) {
	select {
	case r.sim.events <- e:
	case <-ctx.Done():
	}
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}
