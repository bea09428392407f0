package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/storage"
)

type habitTx struct {
	ctx   context.Context
	s     *Store
	tx    *sql.Tx
	habit models.Habit
}

func (t *habitTx) Habit() models.Habit {
	return t.habit
}

func (t *habitTx) Entry(day string) (*models.HabitEntry, error) {
	e, err := t.s.getEntry(t.ctx, t.tx, t.habit.ID, day)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (t *habitTx) Entries(startDay, endDay string) ([]models.HabitEntry, error) {
	return t.s.entriesInRange(t.ctx, t.tx, t.habit.ID, startDay, endDay)
}

func (t *habitTx) PutEntry(e models.HabitEntry) error {
	if e.HabitID != t.habit.ID {
		return fmt.Errorf("entry for habit %s written in a transaction for %s", e.HabitID, t.habit.ID)
	}
	return t.s.putEntry(t.ctx, t.tx, e)
}

func (t *habitTx) SetStreak(st models.StreakState) error {
	if st.Streak < 0 {
		st.Streak = 0
	}
	_, err := t.tx.ExecContext(t.ctx, t.s.q(`
		UPDATE habits SET streak = ?, longest_streak = ?, last_completed_day = ?, streak_reset_at = ?
		WHERE id = ?`),
		st.Streak, st.LongestStreak, nullString(st.LastCompletedDay), nullTime(st.StreakResetAt), t.habit.ID)
	if err != nil {
		return fmt.Errorf("update streak for %s: %w", t.habit.ID, err)
	}
	t.habit.Streak = st.Streak
	t.habit.LongestStreak = st.LongestStreak
	t.habit.LastCompletedDay = st.LastCompletedDay
	t.habit.StreakResetAt = st.StreakResetAt
	return nil
}

func (s *Store) UpdateHabitTx(ctx context.Context, habitID string, fn func(tx storage.HabitTx) error) error {
	return s.inTx(ctx, nil, func(tx *sql.Tx) error {
		h, err := s.getHabit(ctx, tx, habitID)
		if err != nil {
			return err
		}
		return fn(&habitTx{ctx: ctx, s: s, tx: tx, habit: h})
	})
}

// ReadHabitWindow reads the habit row, the window's entries and the store settings
// inside one read-only transaction, so all three come from the same commit.
func (s *Store) ReadHabitWindow(ctx context.Context, habitID, startDay, endDay string) (storage.HabitWindow, error) {
	var w storage.HabitWindow
	err := s.inTx(ctx, s.Dialect.Snapshot, func(tx *sql.Tx) error {
		h, err := s.getHabit(ctx, tx, habitID)
		if err != nil {
			return err
		}
		entries, err := s.entriesInRange(ctx, tx, habitID, startDay, endDay)
		if err != nil {
			return err
		}
		settings, err := s.getSettings(ctx, tx)
		if err != nil {
			// a store without settings still has a usable calendar
			settings = models.Settings{}
		}
		models.ApplyDefaultSettings(&settings)
		w = storage.HabitWindow{Habit: h, Entries: entries, Settings: settings}
		return nil
	})
	return w, err
}
