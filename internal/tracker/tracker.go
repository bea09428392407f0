// Package tracker is the single write path for habits and their day entries.
// Foreground intents and background reconciliation both go through it, so
// writes to one habit are serialized while different habits proceed in parallel.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/julianstephens/streakline/internal/calendar"
	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/goal"
	"github.com/julianstephens/streakline/internal/logger"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/storage"
	"github.com/julianstephens/streakline/internal/streak"
	"github.com/julianstephens/streakline/internal/tracking"
)

// Intent is one user action against a habit.
type Intent struct {
	Action  goal.Intent `json:"action"`
	HabitID string      `json:"habit_id"`
	Amount  float64     `json:"amount,omitempty"`
	// Day targets a past day for an explicit correction. Empty means today.
	Day  string `json:"day,omitempty"`
	Note string `json:"note,omitempty"`
	// Force accepts a manual write on an automatic habit whose source is available.
	Force bool `json:"force,omitempty"`
}

// Result describes the state after an intent was applied.
type Result struct {
	Habit   models.Habit       `json:"habit"`
	Entry   *models.HabitEntry `json:"entry,omitempty"`
	Streak  streak.Result      `json:"-"`
	Changed bool               `json:"changed"`
}

type Tracker struct {
	store    storage.Provider
	cal      *calendar.Normalizer
	resolver *tracking.Resolver
	locks    *keyedMutex
	newID    func() string
}

func New(store storage.Provider, cal *calendar.Normalizer, resolver *tracking.Resolver) *Tracker {
	return &Tracker{
		store:    store,
		cal:      cal,
		resolver: resolver,
		locks:    newKeyedMutex(),
		newID:    uuid.NewString,
	}
}

func (t *Tracker) Calendar() *calendar.Normalizer {
	return t.cal
}

func (t *Tracker) Resolver() *tracking.Resolver {
	return t.resolver
}

// Apply validates and records an intent. Completing an already completed day is
// a no-op and reports Changed=false.
func (t *Tracker) Apply(ctx context.Context, in Intent) (Result, error) {
	unlock := t.locks.Lock(in.HabitID)
	defer unlock()

	habit, err := t.store.GetHabit(ctx, in.HabitID)
	if err != nil {
		return Result{}, err
	}
	if habit.ArchivedAt != nil {
		return Result{}, apperrors.NotAllowedf("habit %q is archived", habit.Name)
	}

	if err := goal.Accepts(goal.VariantOf(habit.Goal()), in.Action); err != nil {
		return Result{}, err
	}

	today := t.cal.Today()
	day, err := t.targetDay(in.Day, today)
	if err != nil {
		return Result{}, err
	}

	if in.Action == goal.IntentReset {
		return t.reset(ctx, habit, today)
	}

	if err := checkAmount(in); err != nil {
		return Result{}, err
	}

	src, err := t.resolver.CheckManualWrite(ctx, habit, in.Force)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = t.store.UpdateHabitTx(ctx, habit.ID, func(tx storage.HabitTx) error {
		existing, err := tx.Entry(day)
		if err != nil {
			return err
		}
		entry := t.entryFor(tx.Habit(), existing, day)

		changed, err := applyIntent(&entry, existing, in)
		if err != nil {
			return err
		}
		if in.Note != "" && entry.Note != in.Note {
			entry.Note = in.Note
			changed = true
		}
		if !changed {
			// nothing recomputed; report the cached streak as it reads today
			h := tx.Habit()
			h.Streak = streak.Display(h.StreakState(), today)
			res = Result{Habit: h, Entry: existing}
			return nil
		}

		entry.Source = src
		entry.UpdatedAt = t.cal.Now()
		if err := tx.PutEntry(entry); err != nil {
			return err
		}
		sr, err := t.recompute(tx, today)
		if err != nil {
			return err
		}
		res = Result{Habit: tx.Habit(), Entry: &entry, Streak: sr, Changed: true}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if res.Changed {
		logger.Info("Applied intent", "habit", habit.Name, "action", in.Action, "day", day,
			"source", src, "streak", res.Habit.Streak)
		t.compactDuplicates(ctx, res.Streak)
	}
	return res, nil
}

func (t *Tracker) targetDay(day, today string) (string, error) {
	if day == "" {
		return today, nil
	}
	if !calendar.ValidateDay(day) {
		return "", apperrors.NewConfigError("day", "%q is not a YYYY-MM-DD date", day)
	}
	if day > today {
		return "", apperrors.NotAllowedf("cannot record %s before it happens", day)
	}
	return day, nil
}

func checkAmount(in Intent) error {
	if in.Action != goal.IntentAddProgress && in.Action != goal.IntentSetProgress {
		return nil
	}
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) {
		return apperrors.NewConfigError("amount", "must be a finite number")
	}
	if in.Action == goal.IntentSetProgress && in.Amount < 0 {
		return apperrors.NewConfigError("amount", "progress must not be negative")
	}
	if in.Action == goal.IntentAddProgress && in.Amount == 0 {
		return apperrors.NewConfigError("amount", "must not be zero")
	}
	return nil
}

// entryFor returns a copy of existing, or a fresh entry that captures the habit's
// goal as it is now.
func (t *Tracker) entryFor(h models.Habit, existing *models.HabitEntry, day string) models.HabitEntry {
	if existing != nil {
		return *existing
	}
	now := t.cal.Now()
	return models.HabitEntry{
		ID:        t.newID(),
		HabitID:   h.ID,
		Day:       day,
		Goal:      h.Goal(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func applyIntent(entry *models.HabitEntry, existing *models.HabitEntry, in Intent) (bool, error) {
	before := *entry
	switch in.Action {
	case goal.IntentComplete:
		if err := goal.AllowsCompletion(existing); err != nil {
			return false, err
		}
		goal.ApplyComplete(entry)
	case goal.IntentFail:
		goal.ApplyFailure(entry)
	case goal.IntentAddProgress:
		goal.ApplyProgress(entry, entry.Progress+in.Amount)
	case goal.IntentSetProgress:
		goal.ApplyProgress(entry, in.Amount)
	default:
		return false, apperrors.NotAllowedf("unsupported intent %s", in.Action)
	}
	if existing == nil {
		return true, nil
	}
	return before.Progress != entry.Progress || before.IsCompleted != entry.IsCompleted ||
		before.IsFailed != entry.IsFailed, nil
}

// reset zeroes the streak without touching entries. Days on or before the reset
// instant stop counting toward the new run.
func (t *Tracker) reset(ctx context.Context, habit models.Habit, today string) (Result, error) {
	var res Result
	err := t.store.UpdateHabitTx(ctx, habit.ID, func(tx storage.HabitTx) error {
		now := t.cal.Now()
		prev := tx.Habit().StreakState()
		if err := tx.SetStreak(models.StreakState{
			Streak:        0,
			LongestStreak: prev.LongestStreak,
			StreakResetAt: &now,
		}); err != nil {
			return err
		}
		res = Result{Habit: tx.Habit(), Changed: true}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	logger.Info("Streak reset", "habit", habit.Name, "day", today)
	return res, nil
}

// recompute derives the streak from the habit's full history and stores it.
func (t *Tracker) recompute(tx storage.HabitTx, today string) (streak.Result, error) {
	h := tx.Habit()
	entries, err := tx.Entries("", today)
	if err != nil {
		return streak.Result{}, err
	}
	res := streak.Compute(entries, today, streak.OptionsFor(h, t.cal))
	if len(res.Duplicates) > 0 {
		logger.Warn("Store inconsistency while recomputing streak", "habit", h.Name,
			"error", apperrors.ErrStoreInconsistency, "duplicates", len(res.Duplicates))
	}
	if err := tx.SetStreak(streak.Stored(h.StreakState(), res)); err != nil {
		return streak.Result{}, err
	}
	return res, nil
}

// RecomputeStreak refreshes a habit's cached streak as of today.
func (t *Tracker) RecomputeStreak(ctx context.Context, habitID string) (streak.Result, error) {
	unlock := t.locks.Lock(habitID)
	defer unlock()

	today := t.cal.Today()
	var res streak.Result
	err := t.store.UpdateHabitTx(ctx, habitID, func(tx storage.HabitTx) error {
		var err error
		res, err = t.recompute(tx, today)
		return err
	})
	if err != nil {
		return res, err
	}
	t.compactDuplicates(ctx, res)
	return res, nil
}

// compactDuplicates runs a corrective compaction once a committed recompute has
// seen more than one live entry for a day. The write already succeeded, so a
// failed compaction is logged and left for doctor --fix.
func (t *Tracker) compactDuplicates(ctx context.Context, res streak.Result) {
	if len(res.Duplicates) == 0 {
		return
	}
	report, err := t.store.Compact(ctx)
	if err != nil {
		logger.Warn("Corrective compaction failed", "error", err)
		return
	}
	logger.Info("Corrective compaction", "duplicates_removed", report.DuplicatesRemoved,
		"dangling_removed", report.DanglingRemoved)
}

// Reconcile merges an automatic source's aggregate for one day into the store.
// It is idempotent: applying the same value twice leaves one entry with that value.
func (t *Tracker) Reconcile(ctx context.Context, habitID, day string, value float64) (tracking.Action, error) {
	unlock := t.locks.Lock(habitID)
	defer unlock()

	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return tracking.ActionSkip, fmt.Errorf("source value %v for %s is not a valid progress", value, day)
	}

	var action tracking.Action
	err := t.store.UpdateHabitTx(ctx, habitID, func(tx storage.HabitTx) error {
		h := tx.Habit()
		if !h.IsAutomatic() {
			action = tracking.ActionSkip
			return nil
		}
		existing, err := tx.Entry(day)
		if err != nil {
			return err
		}
		action = tracking.ReconcileAction(existing)
		if action == tracking.ActionSkip {
			return nil
		}

		entry := t.entryFor(h, existing, day)
		before := entry
		goal.ApplyProgress(&entry, value)
		entry.Source = models.SourceAutomatic
		if existing != nil && before.Progress == entry.Progress && before.IsCompleted == entry.IsCompleted &&
			before.Source == entry.Source {
			action = tracking.ActionSkip
			return nil
		}
		entry.UpdatedAt = t.cal.Now()
		return tx.PutEntry(entry)
	})
	if err != nil {
		return tracking.ActionSkip, err
	}
	return action, nil
}

// CreateHabit fills defaults, validates the goal configuration and stores the habit.
func (t *Tracker) CreateHabit(ctx context.Context, h models.Habit) (models.Habit, error) {
	h.Name = strings.TrimSpace(h.Name)
	if h.ID == "" {
		h.ID = t.newID()
	}
	if h.GoalUnit == "" {
		h.GoalUnit = models.GoalUnitNone
	}
	if h.TrackingMode == "" {
		h.TrackingMode = models.TrackingManual
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = t.cal.Now()
	}
	h.Streak, h.LongestStreak, h.LastCompletedDay = 0, 0, ""

	if err := goal.Validate(h); err != nil {
		return models.Habit{}, err
	}
	if _, err := t.store.GetHabitByName(ctx, h.Name); err == nil {
		return models.Habit{}, apperrors.NewConfigError("name", "a habit named %q already exists", h.Name)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return models.Habit{}, err
	}

	if err := t.store.AddHabit(ctx, h); err != nil {
		return models.Habit{}, err
	}
	logger.Info("Habit created", "habit", h.Name, "kind", h.Kind, "variant", goal.VariantOf(h.Goal()), "tracking", h.TrackingMode)
	return h, nil
}

// EditHabit stores a new configuration. Existing entries keep the goal they were
// recorded under.
func (t *Tracker) EditHabit(ctx context.Context, h models.Habit) (models.Habit, error) {
	unlock := t.locks.Lock(h.ID)
	defer unlock()

	if err := goal.Validate(h); err != nil {
		return models.Habit{}, err
	}
	if other, err := t.store.GetHabitByName(ctx, h.Name); err == nil && other.ID != h.ID {
		return models.Habit{}, apperrors.NewConfigError("name", "a habit named %q already exists", h.Name)
	}
	if err := t.store.UpdateHabit(ctx, h); err != nil {
		return models.Habit{}, err
	}
	return t.store.GetHabit(ctx, h.ID)
}

func (t *Tracker) ArchiveHabit(ctx context.Context, id string) error {
	unlock := t.locks.Lock(id)
	defer unlock()
	return t.store.ArchiveHabit(ctx, id)
}

func (t *Tracker) UnarchiveHabit(ctx context.Context, id string) error {
	unlock := t.locks.Lock(id)
	defer unlock()
	return t.store.UnarchiveHabit(ctx, id)
}

// DeleteHabit soft-deletes the habit together with its entries.
func (t *Tracker) DeleteHabit(ctx context.Context, id string) error {
	unlock := t.locks.Lock(id)
	defer unlock()
	if err := t.store.DeleteHabit(ctx, id); err != nil {
		return err
	}
	logger.Info("Habit deleted", "habit_id", id)
	return nil
}

func (t *Tracker) RestoreHabit(ctx context.Context, id string) error {
	unlock := t.locks.Lock(id)
	defer unlock()
	return t.store.RestoreHabit(ctx, id)
}

// ClearHistory permanently removes every entry of a habit and resets its streaks.
func (t *Tracker) ClearHistory(ctx context.Context, id string) (int64, error) {
	unlock := t.locks.Lock(id)
	defer unlock()
	n, err := t.store.ClearHabitEntries(ctx, id)
	if err != nil {
		return 0, err
	}
	logger.Info("Habit history cleared", "habit_id", id, "entries", n)
	return n, nil
}

