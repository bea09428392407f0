package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/julianstephens/streakline/internal/calendar"
	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/goal"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/source"
	"github.com/julianstephens/streakline/internal/storage"
	"github.com/julianstephens/streakline/internal/storage/sqlite"
	"github.com/julianstephens/streakline/internal/tracking"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	tr    *Tracker
	store *sqlite.Store
	src   *source.Memory
	clock *testClock
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := sqlite.NewStore(filepath.Join(t.TempDir(), "streakline.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := &testClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	cal := calendar.New(time.UTC).WithClock(clock.Now)
	src := source.NewMemory(source.Authorized)
	return &fixture{tr: New(store, cal, tracking.NewResolver(src)), store: store, src: src, clock: clock}
}

func (f *fixture) setDay(day string, hour int) {
	d, _ := time.Parse("2006-01-02", day)
	f.clock.Set(d.Add(time.Duration(hour) * time.Hour))
}

func (f *fixture) create(t *testing.T, h models.Habit) models.Habit {
	t.Helper()
	created, err := f.tr.CreateHabit(context.Background(), h)
	if err != nil {
		t.Fatalf("CreateHabit(%s) error = %v", h.Name, err)
	}
	return created
}

func (f *fixture) apply(t *testing.T, in Intent) Result {
	t.Helper()
	res, err := f.tr.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("Apply(%s on %s) error = %v", in.Action, in.Day, err)
	}
	return res
}

func TestCompleteDailyBuildsStreak(t *testing.T) {
	f := setup(t)
	h := f.create(t, models.Habit{Name: "Read", Kind: models.HabitKindBuild})

	for _, day := range []string{"2026-03-01", "2026-03-02", "2026-03-03", "2026-03-04", "2026-03-06"} {
		f.setDay(day, 20)
		f.apply(t, Intent{Action: goal.IntentComplete, HabitID: h.ID})
	}

	got, err := f.store.GetHabit(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("GetHabit() error = %v", err)
	}
	if got.Streak != 1 || got.LongestStreak != 4 {
		t.Errorf("streak = %d longest = %d, want 1 and 4", got.Streak, got.LongestStreak)
	}
	if got.LastCompletedDay != "2026-03-06" {
		t.Errorf("LastCompletedDay = %q", got.LastCompletedDay)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	f := setup(t)
	h := f.create(t, models.Habit{Name: "Read", Kind: models.HabitKindBuild})

	first := f.apply(t, Intent{Action: goal.IntentComplete, HabitID: h.ID})
	second := f.apply(t, Intent{Action: goal.IntentComplete, HabitID: h.ID})
	if !first.Changed || second.Changed {
		t.Errorf("Changed = %v then %v, want true then false", first.Changed, second.Changed)
	}
	entries, _ := f.store.GetHabitEntriesForHabit(context.Background(), h.ID, "", "")
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}

func TestUnchangedIntentReportsLapsedStreakAsZero(t *testing.T) {
	f := setup(t)
	h := f.create(t, models.Habit{Name: "Read", Kind: models.HabitKindBuild})

	f.setDay("2026-03-03", 12)
	if res := f.apply(t, Intent{Action: goal.IntentComplete, HabitID: h.ID}); res.Habit.Streak != 1 {
		t.Fatalf("streak = %d, want 1", res.Habit.Streak)
	}

	f.setDay("2026-03-10", 12)
	res := f.apply(t, Intent{Action: goal.IntentComplete, HabitID: h.ID, Day: "2026-03-03"})
	if res.Changed {
		t.Fatal("repeat completion should not change anything")
	}
	if res.Habit.Streak != 0 || res.Habit.LongestStreak != 1 {
		t.Errorf("streak = %d best = %d, want 0 and 1", res.Habit.Streak, res.Habit.LongestStreak)
	}
}

func TestLimitHabitReevaluatesSameDay(t *testing.T) {
	f := setup(t)
	h := f.create(t, models.Habit{
		Name: "Coffee", Kind: models.HabitKindQuit, QuitVariant: models.QuitVariantLimit,
		GoalTarget: 2, GoalUnit: models.GoalUnitCups,
	})

	steps := []struct {
		action  goal.Intent
		amount  float64
		success bool
	}{
		{goal.IntentAddProgress, 1, true},
		{goal.IntentAddProgress, 2, false},
		{goal.IntentSetProgress, 2, true},
		{goal.IntentSetProgress, 0, true},
	}
	for i, step := range steps {
		res := f.apply(t, Intent{Action: step.action, HabitID: h.ID, Amount: step.amount})
		if got := goal.IsDaySuccessful(res.Entry); got != step.success {
			t.Errorf("step %d: successful = %v, want %v (progress %v)", i, got, step.success, res.Entry.Progress)
		}
		wantStreak := 0
		if step.success {
			wantStreak = 1
		}
		if res.Habit.Streak != wantStreak {
			t.Errorf("step %d: streak = %d, want %d", i, res.Habit.Streak, wantStreak)
		}
	}
}

func TestIntentRejectedForVariant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	binary := f.create(t, models.Habit{Name: "Meditate", Kind: models.HabitKindBuild})
	abstain := f.create(t, models.Habit{Name: "No sugar", Kind: models.HabitKindQuit, QuitVariant: models.QuitVariantAbstinence})

	tests := []struct {
		name string
		in   Intent
	}{
		{"fail on build", Intent{Action: goal.IntentFail, HabitID: binary.ID}},
		{"progress on binary", Intent{Action: goal.IntentAddProgress, HabitID: binary.ID, Amount: 1}},
		{"progress on abstinence", Intent{Action: goal.IntentSetProgress, HabitID: abstain.ID, Amount: 1}},
		{"future day", Intent{Action: goal.IntentComplete, HabitID: binary.ID, Day: "2026-03-11"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.tr.Apply(ctx, tt.in); !errors.Is(err, apperrors.ErrNotAllowed) {
				t.Errorf("Apply() error = %v, want ErrNotAllowed", err)
			}
		})
	}

	if _, err := f.tr.Apply(ctx, Intent{Action: goal.IntentComplete, HabitID: binary.ID, Day: "03/01/2026"}); !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Errorf("malformed day error = %v, want ErrInvalidConfig", err)
	}
}

func TestAbstinenceSlipCannotBeUndone(t *testing.T) {
	f := setup(t)
	h := f.create(t, models.Habit{Name: "No sugar", Kind: models.HabitKindQuit, QuitVariant: models.QuitVariantAbstinence})

	res := f.apply(t, Intent{Action: goal.IntentFail, HabitID: h.ID})
	if res.Habit.Streak != 0 || goal.Classify(res.Entry) != goal.Failed {
		t.Fatalf("after fail: streak = %d outcome = %v", res.Habit.Streak, goal.Classify(res.Entry))
	}
	if _, err := f.tr.Apply(context.Background(), Intent{Action: goal.IntentComplete, HabitID: h.ID}); !errors.Is(err, apperrors.ErrNotAllowed) {
		t.Errorf("complete after slip error = %v, want ErrNotAllowed", err)
	}
}

func TestBackfillPastDay(t *testing.T) {
	f := setup(t)
	h := f.create(t, models.Habit{Name: "Read", Kind: models.HabitKindBuild})

	f.apply(t, Intent{Action: goal.IntentComplete, HabitID: h.ID, Day: "2026-03-08"})
	res := f.apply(t, Intent{Action: goal.IntentComplete, HabitID: h.ID, Day: "2026-03-09"})
	if res.Habit.Streak != 2 {
		t.Errorf("streak after backfill = %d, want 2", res.Habit.Streak)
	}
}

func TestResetKeepsLongestAndIgnoresEarlierDays(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	h := f.create(t, models.Habit{Name: "Read", Kind: models.HabitKindBuild})

	for _, day := range []string{"2026-03-08", "2026-03-09", "2026-03-10"} {
		f.setDay(day, 9)
		f.apply(t, Intent{Action: goal.IntentComplete, HabitID: h.ID})
	}
	f.setDay("2026-03-10", 10)
	res := f.apply(t, Intent{Action: goal.IntentReset, HabitID: h.ID})
	if res.Habit.Streak != 0 || res.Habit.LongestStreak != 3 || res.Habit.StreakResetAt == nil {
		t.Fatalf("after reset: %+v", res.Habit.StreakState())
	}

	entries, _ := f.store.GetHabitEntriesForHabit(ctx, h.ID, "", "")
	if len(entries) != 3 {
		t.Errorf("reset removed entries: %d left", len(entries))
	}

	sr, err := f.tr.RecomputeStreak(ctx, h.ID)
	if err != nil {
		t.Fatalf("RecomputeStreak() error = %v", err)
	}
	if sr.Current != 0 {
		t.Errorf("recomputed streak after reset = %d, want 0", sr.Current)
	}

	f.setDay("2026-03-11", 9)
	res = f.apply(t, Intent{Action: goal.IntentComplete, HabitID: h.ID})
	if res.Habit.Streak != 1 || res.Habit.LongestStreak != 3 {
		t.Errorf("after new completion: streak = %d longest = %d", res.Habit.Streak, res.Habit.LongestStreak)
	}
}

func TestManualWriteOnAutomaticHabit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	h := f.create(t, models.Habit{
		Name: "Walk", Kind: models.HabitKindBuild, GoalTarget: 8000, GoalUnit: models.GoalUnitSteps,
		TrackingMode: models.TrackingAutomatic, Metric: "steps",
	})

	in := Intent{Action: goal.IntentSetProgress, HabitID: h.ID, Amount: 9000}
	if _, err := f.tr.Apply(ctx, in); !errors.Is(err, apperrors.ErrNotAllowed) {
		t.Fatalf("manual write with authorized source error = %v, want ErrNotAllowed", err)
	}

	in.Force = true
	res := f.apply(t, in)
	if res.Entry.Source != models.SourceManual {
		t.Errorf("forced write source = %q, want manual", res.Entry.Source)
	}
}

func TestFallbackEntriesSurviveReconcile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	h := f.create(t, models.Habit{
		Name: "Walk", Kind: models.HabitKindBuild, GoalTarget: 8000, GoalUnit: models.GoalUnitSteps,
		TrackingMode: models.TrackingAutomatic, Metric: "steps",
	})

	f.src.SetAuthorization(source.Denied, nil)
	res := f.apply(t, Intent{Action: goal.IntentSetProgress, HabitID: h.ID, Amount: 8500, Day: "2026-03-09"})
	if res.Entry.Source != models.SourceFallback {
		t.Fatalf("source while denied = %q, want fallback", res.Entry.Source)
	}

	f.src.SetAuthorization(source.Authorized, nil)
	action, err := f.tr.Reconcile(ctx, h.ID, "2026-03-09", 3000)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if action != tracking.ActionSkip {
		t.Errorf("action on fallback day = %v, want skip", action)
	}
	action, err = f.tr.Reconcile(ctx, h.ID, "2026-03-10", 9100)
	if err != nil || action != tracking.ActionCreate {
		t.Fatalf("Reconcile(today) = %v, %v", action, err)
	}

	past, _ := f.store.GetHabitEntry(ctx, h.ID, "2026-03-09")
	if past.Progress != 8500 || past.Source != models.SourceFallback {
		t.Errorf("fallback entry changed: %+v", past)
	}
	today, _ := f.store.GetHabitEntry(ctx, h.ID, "2026-03-10")
	if today.Source != models.SourceAutomatic || !today.IsCompleted {
		t.Errorf("automatic entry = %+v", today)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	h := f.create(t, models.Habit{
		Name: "Walk", Kind: models.HabitKindBuild, GoalTarget: 8000, GoalUnit: models.GoalUnitSteps,
		TrackingMode: models.TrackingAutomatic, Metric: "steps",
	})

	want := []tracking.Action{tracking.ActionCreate, tracking.ActionSkip, tracking.ActionSkip}
	for i, w := range want {
		got, err := f.tr.Reconcile(ctx, h.ID, "2026-03-10", 4200)
		if err != nil {
			t.Fatalf("Reconcile() #%d error = %v", i, err)
		}
		if got != w {
			t.Errorf("Reconcile() #%d = %v, want %v", i, got, w)
		}
	}
	if got, _ := f.tr.Reconcile(ctx, h.ID, "2026-03-10", 5000); got != tracking.ActionUpdate {
		t.Errorf("Reconcile() with new value = %v, want update", got)
	}
	entries, _ := f.store.GetHabitEntriesForHabit(ctx, h.ID, "", "")
	if len(entries) != 1 || entries[0].Progress != 5000 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestCreateHabitValidation(t *testing.T) {
	f := setup(t)
	f.create(t, models.Habit{Name: "Read", Kind: models.HabitKindBuild})

	tests := []struct {
		name string
		h    models.Habit
	}{
		{"duplicate name", models.Habit{Name: " Read ", Kind: models.HabitKindBuild}},
		{"empty name", models.Habit{Name: "  ", Kind: models.HabitKindBuild}},
		{"limit without target", models.Habit{Name: "Coffee", Kind: models.HabitKindQuit, QuitVariant: models.QuitVariantLimit, GoalUnit: models.GoalUnitCups}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.tr.CreateHabit(context.Background(), tt.h); !errors.Is(err, apperrors.ErrInvalidConfig) {
				t.Errorf("CreateHabit() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestEditKeepsEntrySnapshots(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	h := f.create(t, models.Habit{Name: "Water", Kind: models.HabitKindBuild, GoalTarget: 8, GoalUnit: models.GoalUnitGlasses})
	f.apply(t, Intent{Action: goal.IntentSetProgress, HabitID: h.ID, Amount: 8, Day: "2026-03-09"})

	h.GoalTarget = 10
	if _, err := f.tr.EditHabit(ctx, h); err != nil {
		t.Fatalf("EditHabit() error = %v", err)
	}
	e, _ := f.store.GetHabitEntry(ctx, h.ID, "2026-03-09")
	if e.Goal.GoalTarget != 8 || !goal.IsDaySuccessful(&e) {
		t.Errorf("historical entry = %+v, want target 8 and successful", e)
	}

	res := f.apply(t, Intent{Action: goal.IntentSetProgress, HabitID: h.ID, Amount: 8})
	if goal.IsDaySuccessful(res.Entry) {
		t.Error("8 of 10 glasses today should not be successful")
	}
}

func TestArchivedHabitRejectsIntents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	h := f.create(t, models.Habit{Name: "Read", Kind: models.HabitKindBuild})
	if err := f.tr.ArchiveHabit(ctx, h.ID); err != nil {
		t.Fatalf("ArchiveHabit() error = %v", err)
	}
	if _, err := f.tr.Apply(ctx, Intent{Action: goal.IntentComplete, HabitID: h.ID}); !errors.Is(err, apperrors.ErrNotAllowed) {
		t.Errorf("Apply() on archived habit error = %v", err)
	}
	if err := f.tr.UnarchiveHabit(ctx, h.ID); err != nil {
		t.Fatalf("UnarchiveHabit() error = %v", err)
	}
	f.apply(t, Intent{Action: goal.IntentComplete, HabitID: h.ID})
}

func TestConcurrentIntentsOnOneHabit(t *testing.T) {
	f := setup(t)
	h := f.create(t, models.Habit{Name: "Water", Kind: models.HabitKindBuild, GoalTarget: 100, GoalUnit: models.GoalUnitGlasses})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.tr.Apply(context.Background(), Intent{Action: goal.IntentAddProgress, HabitID: h.ID, Amount: 1}); err != nil {
				t.Errorf("Apply() error = %v", err)
			}
		}()
	}
	wg.Wait()

	e, err := f.store.GetHabitEntry(context.Background(), h.ID, "2026-03-10")
	if err != nil {
		t.Fatalf("GetHabitEntry() error = %v", err)
	}
	if e.Progress != 10 {
		t.Errorf("progress = %v, want 10", e.Progress)
	}
}

// duplicatingStore hands the tracker a history with an extra, older copy of the
// first day, which the UNIQUE (habit_id, day) constraint keeps out of SQLite.
type duplicatingStore struct {
	*sqlite.Store
	inject bool

	mu          sync.Mutex
	compactions int
}

func (s *duplicatingStore) UpdateHabitTx(ctx context.Context, habitID string, fn func(tx storage.HabitTx) error) error {
	return s.Store.UpdateHabitTx(ctx, habitID, func(tx storage.HabitTx) error {
		return fn(duplicatingTx{HabitTx: tx, inject: s.inject})
	})
}

func (s *duplicatingStore) Compact(ctx context.Context) (storage.CompactReport, error) {
	s.mu.Lock()
	s.compactions++
	s.mu.Unlock()
	return s.Store.Compact(ctx)
}

type duplicatingTx struct {
	storage.HabitTx
	inject bool
}

func (tx duplicatingTx) Entries(startDay, endDay string) ([]models.HabitEntry, error) {
	entries, err := tx.HabitTx.Entries(startDay, endDay)
	if err != nil || !tx.inject || len(entries) == 0 {
		return entries, err
	}
	stale := entries[0]
	stale.ID = "stale-" + stale.ID
	stale.CreatedAt = stale.CreatedAt.Add(-time.Hour)
	stale.IsCompleted = false
	return append(entries, stale), nil
}

func TestDuplicatesTriggerCompaction(t *testing.T) {
	tests := []struct {
		name            string
		inject          bool
		wantCompactions int
	}{
		{"clean history", false, 0},
		{"duplicate day", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			h := f.create(t, models.Habit{Name: "Read", Kind: models.HabitKindBuild})
			store := &duplicatingStore{Store: f.store, inject: tt.inject}
			tr := New(store, f.tr.cal, f.tr.resolver)

			res, err := tr.Apply(context.Background(), Intent{Action: goal.IntentComplete, HabitID: h.ID})
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if res.Habit.Streak != 1 {
				t.Errorf("streak = %d, want 1 from the newer entry", res.Habit.Streak)
			}
			sr, err := tr.RecomputeStreak(context.Background(), h.ID)
			if err != nil {
				t.Fatalf("RecomputeStreak() error = %v", err)
			}
			if sr.Current != 1 {
				t.Errorf("RecomputeStreak() current = %d, want 1", sr.Current)
			}
			if store.compactions != tt.wantCompactions {
				t.Errorf("compactions = %d, want %d", store.compactions, tt.wantCompactions)
			}
		})
	}
}
