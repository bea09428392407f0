package sqldb

import (
	"context"
	"database/sql"

	"github.com/julianstephens/streakline/internal/logger"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/storage"
)

// FindDuplicateEntries returns (habit, day) pairs with more than one live entry.
func (s *Store) FindDuplicateEntries(ctx context.Context) ([]models.DuplicateDay, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	return s.findDuplicates(ctx, db)
}

func (s *Store) findDuplicates(ctx context.Context, q querier) ([]models.DuplicateDay, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+prefixed("e", entryColumns)+` FROM habit_entries e
		JOIN (
			SELECT habit_id, day FROM habit_entries
			WHERE deleted_at IS NULL
			GROUP BY habit_id, day HAVING count(*) > 1
		) d ON d.habit_id = e.habit_id AND d.day = e.day
		WHERE e.deleted_at IS NULL
		ORDER BY e.habit_id, e.day, e.created_at`)
	if err != nil {
		return nil, err
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	var dups []models.DuplicateDay
	for _, e := range entries {
		n := len(dups)
		if n > 0 && dups[n-1].HabitID == e.HabitID && dups[n-1].Day == e.Day {
			dups[n-1].Entries = append(dups[n-1].Entries, e)
			continue
		}
		dups = append(dups, models.DuplicateDay{HabitID: e.HabitID, Day: e.Day, Entries: []models.HabitEntry{e}})
	}
	return dups, nil
}

// FindDanglingEntries returns live entries whose habit is missing or deleted.
func (s *Store) FindDanglingEntries(ctx context.Context) ([]models.HabitEntry, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	return s.findDangling(ctx, db)
}

func (s *Store) findDangling(ctx context.Context, q querier) ([]models.HabitEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+prefixed("e", entryColumns)+` FROM habit_entries e
		LEFT JOIN habits h ON h.id = e.habit_id
		WHERE e.deleted_at IS NULL AND (h.id IS NULL OR h.deleted_at IS NOT NULL)
		ORDER BY e.habit_id, e.day`)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Compact resolves duplicates by keeping the most recently created entry of each
// group and removes entries that no habit owns.
func (s *Store) Compact(ctx context.Context) (storage.CompactReport, error) {
	var report storage.CompactReport
	err := s.inTx(ctx, nil, func(tx *sql.Tx) error {
		dups, err := s.findDuplicates(ctx, tx)
		if err != nil {
			return err
		}
		for _, d := range dups {
			keep := d.Winner()
			for _, e := range d.Entries {
				if e.ID == keep.ID {
					continue
				}
				if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM habit_entries WHERE id = ?`), e.ID); err != nil {
					return err
				}
				report.DuplicatesRemoved++
			}
			logger.Info("Compacted duplicate entries", "habit_id", d.HabitID, "day", d.Day, "kept", keep.ID)
		}

		dangling, err := s.findDangling(ctx, tx)
		if err != nil {
			return err
		}
		for _, e := range dangling {
			var owner sql.NullString
			err := tx.QueryRowContext(ctx, s.q(`SELECT deleted_at FROM habits WHERE id = ?`), e.HabitID).Scan(&owner)
			switch {
			case err == sql.ErrNoRows:
				_, err = tx.ExecContext(ctx, s.q(`DELETE FROM habit_entries WHERE id = ?`), e.ID)
			case err == nil:
				// follow the habit into the trash so a restore brings it back
				_, err = tx.ExecContext(ctx, s.q(`UPDATE habit_entries SET deleted_at = ? WHERE id = ?`), owner.String, e.ID)
			}
			if err != nil {
				return err
			}
			report.DanglingRemoved++
		}
		if len(dangling) > 0 {
			logger.Info("Removed dangling entries", "count", len(dangling))
		}
		return nil
	})
	return report, err
}
