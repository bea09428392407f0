package validation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/streakline/internal/calendar"
	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/goal"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/storage"
	"github.com/julianstephens/streakline/internal/storage/sqlite"
	"github.com/julianstephens/streakline/internal/tracker"
	"github.com/julianstephens/streakline/internal/tracking"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Validator, *sqlite.Store, *tracker.Tracker) {
	t.Helper()
	store := sqlite.NewStore(filepath.Join(t.TempDir(), "streakline.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	cal := calendar.New(time.UTC).WithClock(func() time.Time { return now })
	return New(store, cal), store, tracker.New(store, cal, tracking.NewResolver(nil))
}

func createHabit(t *testing.T, tr *tracker.Tracker, name string) models.Habit {
	t.Helper()
	h, err := tr.CreateHabit(context.Background(), models.Habit{Name: name, Kind: models.HabitKindBuild})
	if err != nil {
		t.Fatalf("CreateHabit() error = %v", err)
	}
	return h
}

func TestCleanStoreHasNoConflicts(t *testing.T) {
	v, _, tr := setup(t)
	h := createHabit(t, tr, "Read")
	if _, err := tr.Apply(context.Background(), tracker.Intent{Action: goal.IntentComplete, HabitID: h.ID}); err != nil {
		t.Fatal(err)
	}

	vr, err := v.Validate(context.Background())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if vr.HasConflicts() || vr.Err() != nil {
		t.Errorf("conflicts on a clean store: %s", vr.FormatReport())
	}
	if vr.FormatReport() != "No conflicts detected." {
		t.Errorf("FormatReport() = %q", vr.FormatReport())
	}
}

func TestDetectsAndFixesProblems(t *testing.T) {
	ctx := context.Background()
	v, store, tr := setup(t)
	h := createHabit(t, tr, "Read")

	// future entry and a cached streak that history does not support
	err := store.UpdateHabitTx(ctx, h.ID, func(tx storage.HabitTx) error {
		if err := tx.PutEntry(models.HabitEntry{
			ID: "future", HabitID: h.ID, Day: "2026-03-12", Goal: h.Goal(), IsCompleted: true,
			Source: models.SourceManual, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		return tx.SetStreak(models.StreakState{Streak: 7, LongestStreak: 7, LastCompletedDay: "2026-03-10"})
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.DB.Exec(`INSERT INTO habit_entries (id, habit_id, day, goal_kind, created_at, updated_at)
		VALUES ('orphan', 'gone', '2026-03-01', 'build', ?, ?)`, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.DB.Exec(`INSERT INTO habits (id, name, kind, quit_variant, goal_target, goal_unit, created_at)
		VALUES ('bad', 'Coffee', 'quit', 'limit', 0, 'cups', ?)`, now.Format(time.RFC3339Nano))
	if err != nil {
		t.Fatal(err)
	}

	vr, err := v.Validate(ctx)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	for _, want := range []ConflictType{ConflictFutureEntry, ConflictStaleStreak, ConflictDanglingEntry, ConflictInvalidHabit} {
		if len(vr.Of(want)) != 1 {
			t.Errorf("%s conflicts = %d, want 1\n%s", want, len(vr.Of(want)), vr.FormatReport())
		}
	}
	if !errors.Is(vr.Err(), apperrors.ErrStoreInconsistency) {
		t.Errorf("Err() = %v", vr.Err())
	}
	if !strings.Contains(vr.FormatReport(), "future day 2026-03-12") {
		t.Errorf("report missing future entry:\n%s", vr.FormatReport())
	}

	actions, err := v.AutoFix(ctx, vr, tr)
	if err != nil {
		t.Fatalf("AutoFix() error = %v", err)
	}
	if len(actions) != 2 {
		t.Errorf("actions = %+v, want compaction and one recompute", actions)
	}

	after, err := v.Validate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(after.Of(ConflictDanglingEntry, ConflictStaleStreak)); n != 0 {
		t.Errorf("fixable conflicts left: %s", after.FormatReport())
	}
	if len(after.Of(ConflictInvalidHabit)) != 1 {
		t.Error("invalid habit configuration should need a manual fix")
	}
}

func TestConflictFixable(t *testing.T) {
	tests := []struct {
		t    ConflictType
		want bool
	}{
		{ConflictDuplicateEntry, true},
		{ConflictDanglingEntry, true},
		{ConflictStaleStreak, true},
		{ConflictInvalidHabit, false},
		{ConflictFutureEntry, false},
	}
	for _, tt := range tests {
		if got := (Conflict{Type: tt.t}).Fixable(); got != tt.want {
			t.Errorf("%s Fixable() = %v, want %v", tt.t, got, tt.want)
		}
	}
}
