package system

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/julianstephens/streakline/internal/cli"
	"github.com/julianstephens/streakline/internal/config"
	"github.com/julianstephens/streakline/internal/goal"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/source"
	"github.com/julianstephens/streakline/internal/storage/sqlite"
	"github.com/julianstephens/streakline/internal/tracker"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func setupTestInitDB(t *testing.T) (*cli.Context, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store := sqlite.NewStore(dbPath)
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return &cli.Context{
		Store:  store,
		Config: config.Default(),
		Source: source.NewMemory(source.Denied),
		Now:    func() time.Time { return testNow },
	}, dbPath
}

func TestInitCmd_Success(t *testing.T) {
	ctx, dbPath := setupTestInitDB(t)
	ctx.ConfigPath = filepath.Join(t.TempDir(), "config.toml")

	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatalf("init command failed: %v", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database file was not created at %s", dbPath)
	}
	if _, err := os.Stat(ctx.ConfigPath); err != nil {
		t.Errorf("default config was not written: %v", err)
	}
	if _, err := os.Stat(ctx.LockPath()); !os.IsNotExist(err) {
		t.Errorf("writer lock left behind after init: %v", err)
	}
}

func TestInitCmd_Idempotent(t *testing.T) {
	ctx, _ := setupTestInitDB(t)
	cmd := &InitCmd{}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	if err := cmd.Run(ctx); err != nil {
		t.Errorf("second init failed: %v", err)
	}
}

func TestInitCmd_Force(t *testing.T) {
	ctx, _ := setupTestInitDB(t)
	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	bg := context.Background()
	tr, err := ctx.Tracker(bg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.CreateHabit(bg, models.Habit{Name: "Read", Kind: models.HabitKindBuild}); err != nil {
		t.Fatal(err)
	}

	if err := (&InitCmd{Force: true}).Run(ctx); err != nil {
		t.Fatalf("init --force failed: %v", err)
	}
	habits, err := ctx.Store.GetAllHabits(bg, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(habits) != 0 {
		t.Errorf("habits after --force = %d, want 0", len(habits))
	}
}

func TestInitCmd_ForceRejectsSameSource(t *testing.T) {
	ctx, dbPath := setupTestInitDB(t)
	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if err := (&InitCmd{Force: true, Source: dbPath}).Run(ctx); err == nil {
		t.Error("expected an error when source and destination are the same")
	}
}

func TestCopyStore(t *testing.T) {
	bg := context.Background()
	src, _ := setupTestInitDB(t)
	if err := src.Store.Init(); err != nil {
		t.Fatal(err)
	}
	if err := src.Store.SaveSettings(bg, models.Settings{Timezone: "UTC", DefaultWindowDays: 45}); err != nil {
		t.Fatal(err)
	}
	tr, err := src.Tracker(bg)
	if err != nil {
		t.Fatal(err)
	}
	h, err := tr.CreateHabit(bg, models.Habit{Name: "Water", Kind: models.HabitKindBuild, GoalTarget: 8, GoalUnit: models.GoalUnitCount})
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range []tracker.Intent{
		{Action: goal.IntentSetProgress, HabitID: h.ID, Day: "2026-03-09", Amount: 8},
		{Action: goal.IntentAddProgress, HabitID: h.ID, Amount: 8},
	} {
		if _, err := tr.Apply(bg, in); err != nil {
			t.Fatalf("Apply(%s) error = %v", in.Action, err)
		}
	}

	dst, _ := setupTestInitDB(t)
	if err := dst.Store.Init(); err != nil {
		t.Fatal(err)
	}
	n, err := copyStore(bg, src.Store, dst.Store)
	if err != nil {
		t.Fatalf("copyStore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("copied %d habits, want 1", n)
	}

	got, err := dst.Store.GetHabitByName(bg, "Water")
	if err != nil {
		t.Fatalf("copied habit missing: %v", err)
	}
	if got.Streak != 2 || got.LongestStreak != 2 {
		t.Errorf("streak = %d/%d, want 2/2", got.Streak, got.LongestStreak)
	}
	entries, err := dst.Store.GetHabitEntriesForHabit(bg, h.ID, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
	settings, err := dst.Store.GetSettings(bg)
	if err != nil {
		t.Fatal(err)
	}
	if settings.DefaultWindowDays != 45 {
		t.Errorf("DefaultWindowDays = %d, want 45", settings.DefaultWindowDays)
	}
}
