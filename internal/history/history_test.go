package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitascrape-engine/internal/domain"
)

type memPersister struct {
	mu      sync.Mutex
	saved   []domain.HistoryEntry
	saves   int
	loadErr error
	saveErr error
	initial []domain.HistoryEntry
}

func (m *memPersister) Load(context.Context) ([]domain.HistoryEntry, error) {
	return m.initial, m.loadErr
}

func (m *memPersister) Save(_ context.Context, e []domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = e
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func openStore(t *testing.T, p Persister, opts Options) *Store {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quiet()
	}
	s := Open(context.Background(), p, opts)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func flush(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}

func (m *memPersister) snapshot() ([]domain.HistoryEntry, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved, m.saves
}

// gatedPersister blocks every save until release is closed.
type gatedPersister struct {
	memPersister
	entered chan struct{}
	release chan struct{}
}

func (g *gatedPersister) Save(ctx context.Context, e []domain.HistoryEntry) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.memPersister.Save(ctx, e)
}

func entry(n int) domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:            fmt.Sprintf("h%d", n),
		SessionID:     fmt.Sprintf("s%d", n),
		FinishedAt:    time.Date(2024, 1, 1, 0, n, 0, 0, time.UTC),
		Status:        domain.StatusCompleted,
		SelectedUnits: []domain.UnitID{"Bayern"},
		Totals:        domain.Stats{UnitsProcessed: 1, ItemsCollected: n},
		Items:         []domain.Item{{ID: fmt.Sprintf("i%d", n), Name: "Kita"}},
	}
}

func TestStore_NewestFirstAndCapacity(t *testing.T) {
	p := &memPersister{}
	s := openStore(t, p, Options{})

	for i := 1; i <= 12; i++ {
		s.Add(entry(i))
	}

	list := s.List()
	require.Len(t, list, DefaultCapacity)
	assert.Equal(t, "h12", list[0].ID)
	assert.Equal(t, "h3", list[9].ID)
	_, ok := s.Get("h1")
	assert.False(t, ok)

	flush(t, s)
	saved, saves := p.snapshot()
	require.Len(t, saved, DefaultCapacity)
	assert.Equal(t, "h12", saved[0].ID)
	assert.Equal(t, "h3", saved[9].ID)
	assert.GreaterOrEqual(t, saves, 1)
	assert.LessOrEqual(t, saves, 12)
}

func TestStore_Delete(t *testing.T) {
	p := &memPersister{}
	s := openStore(t, p, Options{})
	s.Add(entry(1))
	s.Add(entry(2))
	s.Add(entry(3))

	require.NoError(t, s.Delete("h2"))
	ids := []string{}
	for _, e := range s.List() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"h3", "h1"}, ids)
	flush(t, s)
	saved, _ := p.snapshot()
	assert.Len(t, saved, 2)

	assert.ErrorIs(t, s.Delete("h2"), domain.ErrNotFound)
}

func TestStore_LoadFailureStartsEmpty(t *testing.T) {
	p := &memPersister{loadErr: errors.New("disk gone"), initial: []domain.HistoryEntry{entry(1)}}
	s := openStore(t, p, Options{})
	assert.Zero(t, s.Len())
}

func TestStore_LoadTrimsToCapacity(t *testing.T) {
	p := &memPersister{initial: []domain.HistoryEntry{entry(3), entry(2), entry(1)}}
	s := openStore(t, p, Options{Capacity: 2})
	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "h3", list[0].ID)
}

func TestStore_SaveFailureKeepsMemory(t *testing.T) {
	p := &memPersister{saveErr: errors.New("read-only")}
	s := openStore(t, p, Options{})

	s.Add(entry(1))
	assert.Equal(t, 1, s.Len())
	flush(t, s)
	_, saves := p.snapshot()
	assert.Equal(t, 1, saves)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Delete("h1"))
	assert.Zero(t, s.Len())
	flush(t, s)
	_, saves = p.snapshot()
	assert.Equal(t, 2, saves)
}

func TestStore_SlowSaveDoesNotBlockMutations(t *testing.T) {
	p := &gatedPersister{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s := openStore(t, p, Options{})
	t.Cleanup(func() {
		select {
		case <-p.release:
		default:
			close(p.release)
		}
	})

	s.Add(entry(1))
	select {
	case <-p.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never started saving")
	}

	// The first save is stuck; further mutations still return at once.
	done := make(chan struct{})
	go func() {
		s.Add(entry(2))
		s.Add(entry(3))
		_ = s.Delete("h1")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mutations blocked behind a slow save")
	}
	assert.Equal(t, 2, s.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Flush(ctx), context.DeadlineExceeded)

	close(p.release)
	flush(t, s)
	saved, saves := p.snapshot()
	require.Len(t, saved, 2)
	assert.Equal(t, "h3", saved[0].ID)
	assert.Equal(t, "h2", saved[1].ID)
	// The queued snapshots collapse into one save after the stuck one.
	assert.Equal(t, 2, saves)
}

func TestStore_CloseWritesPending(t *testing.T) {
	p := &memPersister{}
	s := Open(context.Background(), p, Options{Logger: quiet()})
	s.Add(entry(1))
	require.NoError(t, s.Close())

	saved, _ := p.snapshot()
	require.Len(t, saved, 1)
	assert.Equal(t, "h1", saved[0].ID)

	// Still usable in memory after close.
	s.Add(entry(2))
	assert.Equal(t, 2, s.Len())
	assert.ErrorIs(t, s.Flush(context.Background()), ErrClosed)
	require.NoError(t, s.Close())
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := openStore(t, &memPersister{}, Options{})
	e := entry(1)
	s.Add(e)
	e.Items[0].Name = "changed by caller"

	got, ok := s.Get("h1")
	require.True(t, ok)
	assert.Equal(t, "Kita", got.Items[0].Name)

	got.Items[0].Name = "changed again"
	got.SelectedUnits[0] = "Berlin"
	again, _ := s.Get("h1")
	assert.Equal(t, "Kita", again.Items[0].Name)
	assert.Equal(t, domain.UnitID("Bayern"), again.SelectedUnits[0])
}

func TestFilePersister_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.json")
	fp := NewFilePersister(path)
	ctx := context.Background()

	got, err := fp.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	in := []domain.HistoryEntry{entry(2), entry(1)}
	require.NoError(t, fp.Save(ctx, in))

	got, err = fp.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "h2", got[0].ID)
	assert.Equal(t, in[0].Items, got[0].Items)
	assert.True(t, in[0].FinishedAt.Equal(got[0].FinishedAt))

	// No temp files left behind.
	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestFilePersister_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFilePersister(path).Load(context.Background())
	assert.Error(t, err)

	s := openStore(t, NewFilePersister(path), Options{})
	assert.Zero(t, s.Len())
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	s := openStore(t, NewFilePersister(path), Options{})
	s.Add(entry(1))
	s.Add(entry(2))
	flush(t, s)

	reopened := openStore(t, NewFilePersister(path), Options{})
	list := reopened.List()
	require.Len(t, list, 2)
	assert.Equal(t, "h2", list[0].ID)
}
