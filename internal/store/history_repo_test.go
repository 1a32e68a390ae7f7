package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitascrape-engine/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db.Pool))

	var v int
	require.NoError(t, db.Pool.QueryRow(`PRAGMA user_version;`).Scan(&v))
	assert.Equal(t, schemaVersion, v)

	rows, err := db.Pool.Query(`SELECT name FROM pragma_table_info('history') ORDER BY cid;`)
	require.NoError(t, err)
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		cols = append(cols, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{
		"id", "position", "session_id", "finished_at", "status", "units",
		"units_processed", "items_collected", "error_count", "duration_ns", "items",
	}, cols)
}

func TestHistoryRepo_SaveLoad(t *testing.T) {
	repo := NewHistoryRepo(openTestDB(t))
	ctx := context.Background()

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	finished := time.Date(2024, 5, 6, 7, 8, 9, 123, time.UTC)
	in := []domain.HistoryEntry{
		{
			ID:            "h2",
			SessionID:     "s2",
			FinishedAt:    finished,
			Status:        domain.StatusStopped,
			SelectedUnits: []domain.UnitID{"Berlin"},
			Totals:        domain.Stats{UnitsProcessed: 1, ItemsCollected: 1, ErrorCount: 2},
			Duration:      95 * time.Second,
			Items:         []domain.Item{{ID: "i1", Name: "Kita Mitte", RegionID: "Berlin", Capacity: 40}},
		},
		{
			ID:         "h1",
			SessionID:  "s1",
			FinishedAt: finished.Add(-time.Hour),
			Status:     domain.StatusCompleted,
		},
	}
	require.NoError(t, repo.Save(ctx, in))

	got, err = repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "h2", got[0].ID)
	assert.Equal(t, "h1", got[1].ID)
	assert.True(t, finished.Equal(got[0].FinishedAt))
	assert.Equal(t, domain.StatusStopped, got[0].Status)
	assert.Equal(t, in[0].Totals, got[0].Totals)
	assert.Equal(t, in[0].Items, got[0].Items)
	assert.Equal(t, "1m 35s", got[0].DurationText)
	assert.Empty(t, got[1].Items)

	// Saving a shorter list replaces the old rows.
	require.NoError(t, repo.Save(ctx, in[1:]))
	got, err = repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "h1", got[0].ID)
}

func TestHistoryRepo_SaveCancelled(t *testing.T) {
	repo := NewHistoryRepo(openTestDB(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, repo.Save(ctx, []domain.HistoryEntry{{ID: "x", FinishedAt: time.Now()}}))
}

func TestDB_Checkpoint(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewHistoryRepo(db).Save(context.Background(), []domain.HistoryEntry{{ID: "x", FinishedAt: time.Now()}}))
	assert.NoError(t, db.Checkpoint(context.Background()))
}
