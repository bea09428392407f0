package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/storage"
)

var _ storage.Provider = (*Store)(nil)

// TestStore_Integration tests PostgreSQL store with a real database
// Set POSTGRES_TEST_URL environment variable to run this test
// Example: POSTGRES_TEST_URL="postgres://streakline_user@localhost:5432/streakline_test?sslmode=disable"
func TestStore_Integration(t *testing.T) {
	connStr := os.Getenv("POSTGRES_TEST_URL")
	if connStr == "" {
		t.Skip("POSTGRES_TEST_URL not set, skipping PostgreSQL integration test")
	}

	ctx := context.Background()
	store := New(connStr)
	if err := store.Init(); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	suffix := time.Now().Format("150405.000000")
	habit := models.Habit{
		ID: "pg-habit-" + suffix, Name: "Coffee " + suffix, Kind: models.HabitKindQuit,
		QuitVariant: models.QuitVariantLimit, GoalTarget: 2, GoalUnit: models.GoalUnitCups,
		TrackingMode: models.TrackingManual, CreatedAt: time.Now().UTC(),
	}
	defer store.DB.Exec("DELETE FROM habit_entries WHERE habit_id = $1", habit.ID)
	defer store.DB.Exec("DELETE FROM habits WHERE id = $1", habit.ID)

	t.Run("Settings", func(t *testing.T) {
		settings, err := store.GetSettings(ctx)
		if err != nil {
			t.Fatalf("Failed to get settings: %v", err)
		}
		if settings.DefaultWindowDays <= 0 {
			t.Errorf("default window days not set: %+v", settings)
		}
	})

	t.Run("Habits", func(t *testing.T) {
		if err := store.AddHabit(ctx, habit); err != nil {
			t.Fatalf("Failed to add habit: %v", err)
		}
		got, err := store.GetHabit(ctx, habit.ID)
		if err != nil {
			t.Fatalf("Failed to get habit: %v", err)
		}
		if got.QuitVariant != models.QuitVariantLimit || got.GoalTarget != 2 {
			t.Errorf("habit round trip = %+v", got)
		}
	})

	t.Run("EntriesAndSnapshot", func(t *testing.T) {
		now := time.Now().UTC()
		entry := models.HabitEntry{
			ID: "pg-entry-" + suffix, HabitID: habit.ID, Day: "2026-03-01", Progress: 1.5,
			Goal: habit.Goal(), IsCompleted: true, Source: models.SourceManual, CreatedAt: now, UpdatedAt: now,
		}
		err := store.UpdateHabitTx(ctx, habit.ID, func(tx storage.HabitTx) error {
			if err := tx.PutEntry(entry); err != nil {
				return err
			}
			entry.Progress = 2.5
			entry.IsCompleted = false
			if err := tx.PutEntry(entry); err != nil {
				return err
			}
			return tx.SetStreak(models.StreakState{Streak: 0, LongestStreak: 3, LastCompletedDay: "2026-03-01"})
		})
		if err != nil {
			t.Fatalf("UpdateHabitTx failed: %v", err)
		}

		w, err := store.ReadHabitWindow(ctx, habit.ID, "2026-02-01", "2026-03-31")
		if err != nil {
			t.Fatalf("ReadHabitWindow failed: %v", err)
		}
		if len(w.Entries) != 1 || w.Entries[0].Progress != 2.5 || w.Entries[0].IsCompleted {
			t.Errorf("window entries = %+v", w.Entries)
		}
		if w.Habit.LongestStreak != 3 {
			t.Errorf("window habit = %+v", w.Habit)
		}
	})

	t.Run("DeleteCascade", func(t *testing.T) {
		if err := store.DeleteHabit(ctx, habit.ID); err != nil {
			t.Fatalf("DeleteHabit failed: %v", err)
		}
		if _, err := store.ReadHabitWindow(ctx, habit.ID, "", ""); !errors.Is(err, apperrors.ErrNotFound) {
			t.Errorf("snapshot of a deleted habit = %v, want ErrNotFound", err)
		}
		if err := store.RestoreHabit(ctx, habit.ID); err != nil {
			t.Fatalf("RestoreHabit failed: %v", err)
		}
	})
}
