package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/storage"
)

var _ storage.Provider = (*Store)(nil)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "streakline.db"))
	if err := s.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testHabit(id, name string) models.Habit {
	return models.Habit{
		ID: id, Name: name, Kind: models.HabitKindBuild, GoalUnit: models.GoalUnitNone,
		TrackingMode: models.TrackingManual, CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func testEntry(habit models.Habit, id, day string, completed bool) models.HabitEntry {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return models.HabitEntry{
		ID: id, HabitID: habit.ID, Day: day, Goal: habit.Goal(), IsCompleted: completed,
		Source: models.SourceManual, CreatedAt: ts, UpdatedAt: ts,
	}
}

func putEntry(t *testing.T, s *Store, e models.HabitEntry) {
	t.Helper()
	err := s.UpdateHabitTx(context.Background(), e.HabitID, func(tx storage.HabitTx) error {
		return tx.PutEntry(e)
	})
	if err != nil {
		t.Fatalf("PutEntry(%s) error = %v", e.Day, err)
	}
}

func TestInitWritesDefaultSettings(t *testing.T) {
	s := setupStore(t)
	settings, err := s.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if settings.Timezone != "Local" || settings.DefaultWindowDays != 90 {
		t.Errorf("default settings = %+v", settings)
	}

	settings.Timezone = "America/New_York"
	if err := s.SaveSettings(context.Background(), settings); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
	got, _ := s.GetSettings(context.Background())
	if got.Timezone != "America/New_York" {
		t.Errorf("Timezone = %q after save", got.Timezone)
	}
}

func TestLoadRequiresInit(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.db"))
	if err := s.Load(); err == nil {
		t.Error("Load() on a missing database should fail")
	}
}

func TestHabitRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	h := testHabit("h1", "Steps")
	h.GoalTarget, h.GoalUnit = 8000, models.GoalUnitSteps
	h.TrackingMode, h.Metric = models.TrackingAutomatic, "steps"
	if err := s.AddHabit(ctx, h); err != nil {
		t.Fatalf("AddHabit() error = %v", err)
	}

	got, err := s.GetHabit(ctx, "h1")
	if err != nil {
		t.Fatalf("GetHabit() error = %v", err)
	}
	if got.Name != "Steps" || got.GoalTarget != 8000 || got.Metric != "steps" || !got.CreatedAt.Equal(h.CreatedAt) {
		t.Errorf("GetHabit() = %+v", got)
	}
	if _, err := s.GetHabitByName(ctx, "Steps"); err != nil {
		t.Errorf("GetHabitByName() error = %v", err)
	}
	if _, err := s.GetHabit(ctx, "nope"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("GetHabit(missing) = %v, want ErrNotFound", err)
	}
	if err := s.AddHabit(ctx, testHabit("h2", "Steps")); err == nil {
		t.Error("a second live habit with the same name should be rejected")
	}
}

func TestPutEntryUpsertsOnePerDay(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	h := testHabit("h1", "Read")
	if err := s.AddHabit(ctx, h); err != nil {
		t.Fatal(err)
	}

	first := testEntry(h, "e1", "2026-03-01", false)
	putEntry(t, s, first)

	second := testEntry(h, "e2", "2026-03-01", true)
	second.UpdatedAt = second.UpdatedAt.Add(time.Hour)
	second.Note = "done"
	putEntry(t, s, second)

	entries, err := s.GetHabitEntriesForHabit(ctx, "h1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.ID != "e1" || !e.IsCompleted || e.Note != "done" || !e.UpdatedAt.Equal(second.UpdatedAt) {
		t.Errorf("upserted entry = %+v", e)
	}
}

func TestUpdateHabitTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	h := testHabit("h1", "Read")
	if err := s.AddHabit(ctx, h); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := s.UpdateHabitTx(ctx, "h1", func(tx storage.HabitTx) error {
		if err := tx.PutEntry(testEntry(h, "e1", "2026-03-01", true)); err != nil {
			return err
		}
		if err := tx.SetStreak(models.StreakState{Streak: 1, LongestStreak: 1, LastCompletedDay: "2026-03-01"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("UpdateHabitTx() = %v, want boom", err)
	}

	if _, err := s.GetHabitEntry(ctx, "h1", "2026-03-01"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("entry survived a rolled back transaction: %v", err)
	}
	got, _ := s.GetHabit(ctx, "h1")
	if got.Streak != 0 {
		t.Errorf("streak = %d after rollback, want 0", got.Streak)
	}
}

func TestReadHabitWindow(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	h := testHabit("h1", "Read")
	if err := s.AddHabit(ctx, h); err != nil {
		t.Fatal(err)
	}
	for i, day := range []string{"2026-02-27", "2026-02-28", "2026-03-01"} {
		putEntry(t, s, testEntry(h, "e"+string(rune('a'+i)), day, true))
	}

	w, err := s.ReadHabitWindow(ctx, "h1", "2026-02-28", "2026-03-01")
	if err != nil {
		t.Fatalf("ReadHabitWindow() error = %v", err)
	}
	if w.Habit.ID != "h1" || len(w.Entries) != 2 || w.Entries[0].Day != "2026-02-28" {
		t.Errorf("window = %+v", w)
	}
	if w.Settings.DefaultWindowDays != 90 {
		t.Errorf("window settings = %+v", w.Settings)
	}

	if _, err := s.ReadHabitWindow(ctx, "missing", "", ""); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("missing habit = %v, want ErrNotFound", err)
	}
}

func TestDeleteHabitCascadesAndRestores(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	h := testHabit("h1", "Read")
	if err := s.AddHabit(ctx, h); err != nil {
		t.Fatal(err)
	}
	putEntry(t, s, testEntry(h, "e1", "2026-03-01", true))

	if err := s.DeleteHabit(ctx, "h1"); err != nil {
		t.Fatalf("DeleteHabit() error = %v", err)
	}
	if _, err := s.GetHabit(ctx, "h1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("deleted habit still visible: %v", err)
	}
	if entries, _ := s.GetHabitEntriesForHabit(ctx, "h1", "", ""); len(entries) != 0 {
		t.Errorf("cascade left %d live entries", len(entries))
	}
	if dangling, _ := s.FindDanglingEntries(ctx); len(dangling) != 0 {
		t.Errorf("cascade left dangling entries: %+v", dangling)
	}

	if err := s.RestoreHabit(ctx, "h1"); err != nil {
		t.Fatalf("RestoreHabit() error = %v", err)
	}
	if entries, _ := s.GetHabitEntriesForHabit(ctx, "h1", "", ""); len(entries) != 1 {
		t.Errorf("restore brought back %d entries, want 1", len(entries))
	}
}

func TestClearHabitEntries(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	h := testHabit("h1", "Read")
	if err := s.AddHabit(ctx, h); err != nil {
		t.Fatal(err)
	}
	putEntry(t, s, testEntry(h, "e1", "2026-02-28", true))
	putEntry(t, s, testEntry(h, "e2", "2026-03-01", true))
	_ = s.UpdateHabitTx(ctx, "h1", func(tx storage.HabitTx) error {
		return tx.SetStreak(models.StreakState{Streak: 2, LongestStreak: 2, LastCompletedDay: "2026-03-01"})
	})

	n, err := s.ClearHabitEntries(ctx, "h1")
	if err != nil || n != 2 {
		t.Fatalf("ClearHabitEntries() = %d, %v", n, err)
	}
	got, _ := s.GetHabit(ctx, "h1")
	if got.Streak != 0 || got.LongestStreak != 0 || got.LastCompletedDay != "" {
		t.Errorf("streak cache not cleared: %+v", got.StreakState())
	}
}

func TestCompactRemovesDanglingEntries(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	orphan := testEntry(testHabit("gone", "Gone"), "e1", "2026-03-01", true)
	_, err := s.DB.Exec(`INSERT INTO habit_entries (id, habit_id, day, goal_kind, created_at, updated_at)
		VALUES (?, ?, ?, 'build', ?, ?)`, orphan.ID, orphan.HabitID, orphan.Day,
		orphan.CreatedAt.Format(time.RFC3339Nano), orphan.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		t.Fatal(err)
	}

	dangling, err := s.FindDanglingEntries(ctx)
	if err != nil || len(dangling) != 1 {
		t.Fatalf("FindDanglingEntries() = %v, %v", dangling, err)
	}
	report, err := s.Compact(ctx)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if report.DanglingRemoved != 1 {
		t.Errorf("report = %+v", report)
	}
	if dangling, _ := s.FindDanglingEntries(ctx); len(dangling) != 0 {
		t.Errorf("dangling after compact: %+v", dangling)
	}
	if dups, _ := s.FindDuplicateEntries(ctx); len(dups) != 0 {
		t.Errorf("unexpected duplicates: %+v", dups)
	}
}

func TestReadOnlyStore(t *testing.T) {
	ctx := context.Background()
	writer := setupStore(t)
	h := testHabit("h1", "Read")
	if err := writer.AddHabit(ctx, h); err != nil {
		t.Fatal(err)
	}

	reader := NewStore(writer.GetConfigPath(), ReadOnly())
	if err := reader.Load(); err != nil {
		t.Fatalf("reader Load() error = %v", err)
	}
	defer reader.Close()

	if _, err := reader.GetHabit(ctx, "h1"); err != nil {
		t.Errorf("reader GetHabit() error = %v", err)
	}
	if err := reader.AddHabit(ctx, testHabit("h2", "Walk")); err == nil {
		t.Error("reader must not be able to write")
	}
	if err := reader.Init(); err == nil {
		t.Error("Init() on a read-only store should fail")
	}
}
