package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/julianstephens/streakline/internal/models"
)

const habitColumns = `id, name, icon, kind, quit_variant, goal_target, goal_unit, tracking_mode, metric,
	created_at, streak, longest_streak, last_completed_day, streak_reset_at, archived_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHabit(row rowScanner) (models.Habit, error) {
	var h models.Habit
	var createdAt string
	var lastDay, resetAt, archivedAt, deletedAt sql.NullString

	err := row.Scan(&h.ID, &h.Name, &h.Icon, &h.Kind, &h.QuitVariant, &h.GoalTarget, &h.GoalUnit,
		&h.TrackingMode, &h.Metric, &createdAt, &h.Streak, &h.LongestStreak, &lastDay, &resetAt,
		&archivedAt, &deletedAt)
	if err != nil {
		return models.Habit{}, err
	}

	if h.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return models.Habit{}, err
	}
	h.LastCompletedDay = lastDay.String
	if h.StreakResetAt, err = parseNullTime("streak_reset_at", resetAt); err != nil {
		return models.Habit{}, err
	}
	if h.ArchivedAt, err = parseNullTime("archived_at", archivedAt); err != nil {
		return models.Habit{}, err
	}
	if h.DeletedAt, err = parseNullTime("deleted_at", deletedAt); err != nil {
		return models.Habit{}, err
	}
	return h, nil
}

func (s *Store) AddHabit(ctx context.Context, habit models.Habit) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, s.q(`
		INSERT INTO habits (`+habitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		habit.ID, habit.Name, habit.Icon, habit.Kind, habit.QuitVariant, habit.GoalTarget, habit.GoalUnit,
		habit.TrackingMode, habit.Metric, formatTime(habit.CreatedAt), habit.Streak, habit.LongestStreak,
		nullString(habit.LastCompletedDay), nullTime(habit.StreakResetAt), nullTime(habit.ArchivedAt),
		nullTime(habit.DeletedAt))
	if err != nil {
		return fmt.Errorf("add habit %q: %w", habit.Name, err)
	}
	return nil
}

func (s *Store) GetHabit(ctx context.Context, id string) (models.Habit, error) {
	db, err := s.db()
	if err != nil {
		return models.Habit{}, err
	}
	return s.getHabit(ctx, db, id)
}

func (s *Store) getHabit(ctx context.Context, q querier, id string) (models.Habit, error) {
	row := q.QueryRowContext(ctx, s.q(`SELECT `+habitColumns+` FROM habits WHERE id = ? AND deleted_at IS NULL`), id)
	h, err := scanHabit(row)
	if err != nil {
		return models.Habit{}, notFound(err, "habit "+id)
	}
	return h, nil
}

func (s *Store) GetHabitByName(ctx context.Context, name string) (models.Habit, error) {
	db, err := s.db()
	if err != nil {
		return models.Habit{}, err
	}
	row := db.QueryRowContext(ctx, s.q(`SELECT `+habitColumns+` FROM habits WHERE name = ? AND deleted_at IS NULL`), name)
	h, err := scanHabit(row)
	if err != nil {
		return models.Habit{}, notFound(err, fmt.Sprintf("habit %q", name))
	}
	return h, nil
}

func (s *Store) GetAllHabits(ctx context.Context, includeArchived, includeDeleted bool) ([]models.Habit, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}

	query := "SELECT " + habitColumns + " FROM habits WHERE 1=1"
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	if !includeArchived {
		query += " AND archived_at IS NULL"
	}
	query += " ORDER BY created_at, id"

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var habits []models.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

// UpdateHabit writes a habit's configuration. Streak fields are owned by
// UpdateHabitTx and are not touched here.
func (s *Store) UpdateHabit(ctx context.Context, habit models.Habit) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, s.q(`
		UPDATE habits SET name = ?, icon = ?, kind = ?, quit_variant = ?, goal_target = ?, goal_unit = ?,
			tracking_mode = ?, metric = ?
		WHERE id = ? AND deleted_at IS NULL`),
		habit.Name, habit.Icon, habit.Kind, habit.QuitVariant, habit.GoalTarget, habit.GoalUnit,
		habit.TrackingMode, habit.Metric, habit.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, "habit "+habit.ID)
}

func (s *Store) ArchiveHabit(ctx context.Context, id string) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, s.q(`
		UPDATE habits SET archived_at = ? WHERE id = ? AND deleted_at IS NULL AND archived_at IS NULL`),
		formatTime(s.now()), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "habit not found or already archived")
}

func (s *Store) UnarchiveHabit(ctx context.Context, id string) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, s.q(`
		UPDATE habits SET archived_at = NULL WHERE id = ? AND deleted_at IS NULL AND archived_at IS NOT NULL`), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "habit not found or not archived")
}

// DeleteHabit stamps the habit and its live entries with the same deleted_at so
// RestoreHabit can bring back exactly the cascaded rows.
func (s *Store) DeleteHabit(ctx context.Context, id string) error {
	stamp := formatTime(s.now())
	return s.inTx(ctx, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE habits SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`), stamp, id)
		if err != nil {
			return err
		}
		if err := requireAffected(res, "habit "+id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.q(`UPDATE habit_entries SET deleted_at = ? WHERE habit_id = ? AND deleted_at IS NULL`), stamp, id)
		return err
	})
}

func (s *Store) RestoreHabit(ctx context.Context, id string) error {
	return s.inTx(ctx, nil, func(tx *sql.Tx) error {
		var deletedAt sql.NullString
		err := tx.QueryRowContext(ctx, s.q(`SELECT deleted_at FROM habits WHERE id = ?`), id).Scan(&deletedAt)
		if err != nil {
			return notFound(err, "habit "+id)
		}
		if !deletedAt.Valid {
			return fmt.Errorf("habit %s is not deleted", id)
		}

		var name string
		if err := tx.QueryRowContext(ctx, s.q(`SELECT name FROM habits WHERE id = ?`), id).Scan(&name); err != nil {
			return err
		}
		var clash int
		if err := tx.QueryRowContext(ctx, s.q(`SELECT count(*) FROM habits WHERE name = ? AND deleted_at IS NULL`), name).Scan(&clash); err != nil {
			return err
		}
		if clash > 0 {
			return fmt.Errorf("cannot restore habit %q: an active habit already uses that name", name)
		}

		if _, err := tx.ExecContext(ctx, s.q(`UPDATE habits SET deleted_at = NULL WHERE id = ?`), id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.q(`UPDATE habit_entries SET deleted_at = NULL WHERE habit_id = ? AND deleted_at = ?`),
			id, deletedAt.String)
		return err
	})
}
