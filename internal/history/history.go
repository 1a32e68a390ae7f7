// Package history keeps the bounded, newest-first list of finished sessions
// and mirrors it to a Persister.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kitascrape-engine/internal/domain"
)

const DefaultCapacity = 10

// Persister stores the whole list at once.
type Persister interface {
	Load(ctx context.Context) ([]domain.HistoryEntry, error)
	Save(ctx context.Context, entries []domain.HistoryEntry) error
}

// Metrics is told about every persistence attempt.
type Metrics interface {
	ObservePersist(op string, err error)
	SetHistorySize(n int)
}

type Options struct {
	Capacity    int
	Logger      *slog.Logger
	Metrics     Metrics
	SaveTimeout time.Duration
}

// ErrClosed is returned by Flush once the writer has exited with saves
// still outstanding.
var ErrClosed = errors.New("history store closed")

// Store is safe for concurrent use. The in-memory list is the source of
// truth; a failed save is logged and never undone.
//
// Saves run on a single writer goroutine in mutation order. Each save carries
// the whole list, so snapshots queued while a save is in flight collapse into
// the newest one.
type Store struct {
	mu      sync.RWMutex
	entries []domain.HistoryEntry
	p       Persister
	opts    Options

	// Guarded by wmu; taken while mu is held, never the other way round.
	wmu     sync.Mutex
	pending []domain.HistoryEntry
	queued  uint64
	written uint64
	flushed chan struct{}

	wake      chan struct{}
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Open loads the persisted list and starts the writer. A load failure leaves
// the store empty. Close stops the writer.
func Open(ctx context.Context, p Persister, opts Options) *Store {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 5 * time.Second
	}
	s := &Store{
		p:       p,
		opts:    opts,
		flushed: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	entries, err := p.Load(ctx)
	s.observe("load", err)
	if err != nil {
		perr := &domain.PersistenceError{Op: "load", Err: err}
		opts.Logger.Warn("history unavailable, starting empty", "err", perr)
		entries = nil
	}
	if len(entries) > opts.Capacity {
		entries = entries[:opts.Capacity]
	}
	s.entries = entries
	s.sizeChanged()
	opts.Logger.Info("history loaded", "entries", len(s.entries))

	go s.writeLoop()
	return s
}

// Add inserts e at the front, evicting the oldest entry beyond capacity. The
// save happens in the background.
func (s *Store) Add(e domain.HistoryEntry) {
	e = cloneEntry(e)

	s.mu.Lock()
	s.entries = append([]domain.HistoryEntry{e}, s.entries...)
	if len(s.entries) > s.opts.Capacity {
		evicted := s.entries[s.opts.Capacity:]
		for _, old := range evicted {
			s.opts.Logger.Debug("history entry evicted", "id", old.ID)
		}
		s.entries = s.entries[:s.opts.Capacity]
	}
	s.queueLocked()
	s.mu.Unlock()

	s.sizeChanged()
}

// Delete removes the entry with id. It returns domain.ErrNotFound if absent.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	idx := -1
	for i, e := range s.entries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("history entry %q: %w", id, domain.ErrNotFound)
	}
	s.entries = append(s.entries[:idx:idx], s.entries[idx+1:]...)
	s.queueLocked()
	s.mu.Unlock()

	s.sizeChanged()
	return nil
}

// Flush waits until every mutation made so far has been handed to the
// Persister.
func (s *Store) Flush(ctx context.Context) error {
	for {
		s.wmu.Lock()
		if s.written >= s.queued {
			s.wmu.Unlock()
			return nil
		}
		ch := s.flushed
		s.wmu.Unlock()

		select {
		case <-ch:
		case <-s.done:
			s.wmu.Lock()
			behind := s.written < s.queued
			s.wmu.Unlock()
			if behind {
				return ErrClosed
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close writes any queued snapshot and stops the writer. Later mutations stay
// in memory only.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	<-s.done
	return nil
}

// queueLocked hands the current list to the writer. s.mu must be held so the
// queue order matches the mutation order.
func (s *Store) queueLocked() {
	snapshot := s.copyLocked()
	s.wmu.Lock()
	s.pending = snapshot
	s.queued++
	s.wmu.Unlock()

	select {
	case <-s.done:
		s.opts.Logger.Warn("history store closed, change not saved")
		return
	default:
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.writePending()
		case <-s.closing:
			s.writePending()
			return
		}
	}
}

func (s *Store) writePending() {
	s.wmu.Lock()
	entries, gen := s.pending, s.queued
	if gen == s.written {
		s.wmu.Unlock()
		return
	}
	s.pending = nil
	s.wmu.Unlock()

	s.persist(entries)

	s.wmu.Lock()
	s.written = gen
	close(s.flushed)
	s.flushed = make(chan struct{})
	s.wmu.Unlock()
}

// List returns copies of all entries, newest first.
func (s *Store) List() []domain.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) Get(id string) (domain.HistoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			return cloneEntry(e), true
		}
	}
	return domain.HistoryEntry{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) persist(entries []domain.HistoryEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SaveTimeout)
	defer cancel()
	err := s.p.Save(ctx, entries)
	s.observe("save", err)
	if err != nil {
		s.opts.Logger.Error("history save failed", "err", &domain.PersistenceError{Op: "save", Err: err})
	}
}

func (s *Store) observe(op string, err error) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObservePersist(op, err)
	}
}

func (s *Store) sizeChanged() {
	if s.opts.Metrics != nil {
		s.opts.Metrics.SetHistorySize(s.Len())
	}
}

func (s *Store) copyLocked() []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

func cloneEntry(e domain.HistoryEntry) domain.HistoryEntry {
	e.SelectedUnits = append([]domain.UnitID(nil), e.SelectedUnits...)
	e.Items = domain.CloneItems(e.Items)
	return e
}
