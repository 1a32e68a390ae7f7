package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"kitascrape-engine/internal/domain"
)

// HistoryRepo persists the session history in sqlite. It satisfies
// history.Persister.
type HistoryRepo struct {
	db *sql.DB
}

func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db.Pool}
}

func (r *HistoryRepo) Load(ctx context.Context) ([]domain.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, session_id, finished_at, status, units,
       units_processed, items_collected, error_count, duration_ns, items
FROM history
ORDER BY position ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var (
			e          domain.HistoryEntry
			finishedAt string
			status     string
			unitsJSON  string
			itemsJSON  string
			durNs      int64
		)
		if err := rows.Scan(
			&e.ID,
			&e.SessionID,
			&finishedAt,
			&status,
			&unitsJSON,
			&e.Totals.UnitsProcessed,
			&e.Totals.ItemsCollected,
			&e.Totals.ErrorCount,
			&durNs,
			&itemsJSON,
		); err != nil {
			return nil, err
		}
		st, ok := domain.ParseStatus(status)
		if !ok {
			return nil, fmt.Errorf("history %s: unknown status %q", e.ID, status)
		}
		e.Status = st
		if e.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
			return nil, fmt.Errorf("history %s: finished_at: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(unitsJSON), &e.SelectedUnits); err != nil {
			return nil, fmt.Errorf("history %s: units: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(itemsJSON), &e.Items); err != nil {
			return nil, fmt.Errorf("history %s: items: %w", e.ID, err)
		}
		e.Duration = time.Duration(durNs)
		e.DurationText = domain.FormatDuration(e.Duration)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Save replaces the stored list with entries, keeping their order.
func (r *HistoryRepo) Save(ctx context.Context, entries []domain.HistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history;`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO history (id, position, session_id, finished_at, status, units,
                     units_processed, items_collected, error_count, duration_ns, items)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range entries {
		units, err := json.Marshal(nonNilUnits(e.SelectedUnits))
		if err != nil {
			return err
		}
		items, err := json.Marshal(nonNilItems(e.Items))
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, i, e.SessionID, e.FinishedAt.UTC().Format(time.RFC3339Nano), string(e.Status), string(units),
			e.Totals.UnitsProcessed, e.Totals.ItemsCollected, e.Totals.ErrorCount,
			int64(e.Duration), string(items),
		); err != nil {
			return fmt.Errorf("insert history %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func nonNilUnits(u []domain.UnitID) []domain.UnitID {
	if u == nil {
		return []domain.UnitID{}
	}
	return u
}

func nonNilItems(it []domain.Item) []domain.Item {
	if it == nil {
		return []domain.Item{}
	}
	return it
}
