package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/julianstephens/streakline/internal/models"
)

const entryColumns = `id, habit_id, day, progress, goal_kind, goal_quit_variant, goal_target, goal_unit,
	is_completed, is_failed, source, note, created_at, updated_at, deleted_at`

func scanEntry(row rowScanner) (models.HabitEntry, error) {
	var e models.HabitEntry
	var createdAt, updatedAt string
	var deletedAt sql.NullString

	err := row.Scan(&e.ID, &e.HabitID, &e.Day, &e.Progress, &e.Goal.Kind, &e.Goal.QuitVariant,
		&e.Goal.GoalTarget, &e.Goal.GoalUnit, &e.IsCompleted, &e.IsFailed, &e.Source, &e.Note,
		&createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return models.HabitEntry{}, err
	}
	if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return models.HabitEntry{}, err
	}
	if e.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return models.HabitEntry{}, err
	}
	if e.DeletedAt, err = parseNullTime("deleted_at", deletedAt); err != nil {
		return models.HabitEntry{}, err
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]models.HabitEntry, error) {
	defer rows.Close()
	var entries []models.HabitEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) GetHabitEntry(ctx context.Context, habitID, day string) (models.HabitEntry, error) {
	db, err := s.db()
	if err != nil {
		return models.HabitEntry{}, err
	}
	e, err := s.getEntry(ctx, db, habitID, day)
	if err != nil {
		return models.HabitEntry{}, notFound(err, fmt.Sprintf("entry %s/%s", habitID, day))
	}
	return e, nil
}

func (s *Store) getEntry(ctx context.Context, q querier, habitID, day string) (models.HabitEntry, error) {
	row := q.QueryRowContext(ctx, s.q(`
		SELECT `+entryColumns+` FROM habit_entries
		WHERE habit_id = ? AND day = ? AND deleted_at IS NULL`), habitID, day)
	return scanEntry(row)
}

func (s *Store) GetHabitEntriesForDay(ctx context.Context, day string) ([]models.HabitEntry, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, s.q(`
		SELECT `+prefixed("e", entryColumns)+` FROM habit_entries e
		JOIN habits h ON h.id = e.habit_id
		WHERE e.day = ? AND e.deleted_at IS NULL AND h.deleted_at IS NULL
		ORDER BY e.habit_id`), day)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (s *Store) GetHabitEntriesForHabit(ctx context.Context, habitID, startDay, endDay string) ([]models.HabitEntry, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	return s.entriesInRange(ctx, db, habitID, startDay, endDay)
}

func (s *Store) entriesInRange(ctx context.Context, q querier, habitID, startDay, endDay string) ([]models.HabitEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM habit_entries WHERE habit_id = ? AND deleted_at IS NULL`
	args := []any{habitID}
	if startDay != "" {
		query += " AND day >= ?"
		args = append(args, startDay)
	}
	if endDay != "" {
		query += " AND day <= ?"
		args = append(args, endDay)
	}
	query += " ORDER BY day, created_at"

	rows, err := q.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// putEntry upserts on (habit_id, day). The row keeps its original id and created_at.
func (s *Store) putEntry(ctx context.Context, q querier, e models.HabitEntry) error {
	if e.Progress < 0 {
		return fmt.Errorf("entry %s/%s: progress must not be negative", e.HabitID, e.Day)
	}
	_, err := q.ExecContext(ctx, s.q(`
		INSERT INTO habit_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(habit_id, day) DO UPDATE SET
			progress = excluded.progress,
			goal_kind = excluded.goal_kind,
			goal_quit_variant = excluded.goal_quit_variant,
			goal_target = excluded.goal_target,
			goal_unit = excluded.goal_unit,
			is_completed = excluded.is_completed,
			is_failed = excluded.is_failed,
			source = excluded.source,
			note = excluded.note,
			updated_at = excluded.updated_at,
			deleted_at = NULL`),
		e.ID, e.HabitID, e.Day, e.Progress, e.Goal.Kind, e.Goal.QuitVariant, e.Goal.GoalTarget, e.Goal.GoalUnit,
		e.IsCompleted, e.IsFailed, e.Source, e.Note, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert entry %s/%s: %w", e.HabitID, e.Day, err)
	}
	return nil
}

func (s *Store) ClearHabitEntries(ctx context.Context, habitID string) (int64, error) {
	var removed int64
	err := s.inTx(ctx, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM habit_entries WHERE habit_id = ?`), habitID)
		if err != nil {
			return err
		}
		if removed, err = res.RowsAffected(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.q(`
			UPDATE habits SET streak = 0, longest_streak = 0, last_completed_day = NULL, streak_reset_at = NULL
			WHERE id = ?`), habitID)
		return err
	})
	return removed, err
}

// prefixed qualifies a column list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
