// Package validation checks a store's habits and entries for problems that
// correct operation never produces, and repairs the ones that can be repaired.
package validation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/julianstephens/streakline/internal/calendar"
	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/goal"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/storage"
	"github.com/julianstephens/streakline/internal/streak"
)

// ConflictType represents the type of problem found
type ConflictType string

const (
	ConflictInvalidHabit       ConflictType = "invalid_habit"
	ConflictDuplicateHabitName ConflictType = "duplicate_habit_name"
	ConflictDuplicateEntry     ConflictType = "duplicate_entry"
	ConflictDanglingEntry      ConflictType = "dangling_entry"
	ConflictInvalidEntry       ConflictType = "invalid_entry"
	ConflictFutureEntry        ConflictType = "future_entry"
	ConflictStaleStreak        ConflictType = "stale_streak"
)

// Conflict is one detected problem.
type Conflict struct {
	Type        ConflictType
	Description string
	HabitID     string
	Day         string
}

// Fixable reports whether AutoFix can repair the conflict.
func (c Conflict) Fixable() bool {
	switch c.Type {
	case ConflictDuplicateEntry, ConflictDanglingEntry, ConflictStaleStreak:
		return true
	}
	return false
}

// ValidationResult contains all detected conflicts
type ValidationResult struct {
	Conflicts []Conflict
}

func (vr *ValidationResult) HasConflicts() bool {
	return len(vr.Conflicts) > 0
}

// Of returns the conflicts of the given types.
func (vr *ValidationResult) Of(types ...ConflictType) []Conflict {
	var out []Conflict
	for _, c := range vr.Conflicts {
		for _, t := range types {
			if c.Type == t {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// FormatReport returns a human-readable report of all conflicts
func (vr *ValidationResult) FormatReport() string {
	if !vr.HasConflicts() {
		return "No conflicts detected."
	}
	var b strings.Builder
	b.WriteString("Conflicts detected:\n")
	for _, c := range vr.Conflicts {
		fmt.Fprintf(&b, "- %s\n", c.Description)
	}
	return b.String()
}

// Err returns nil when there are no conflicts, otherwise an error wrapping
// ErrStoreInconsistency that summarizes them.
func (vr *ValidationResult) Err() error {
	if !vr.HasConflicts() {
		return nil
	}
	return fmt.Errorf("%w: %d problem(s) found", apperrors.ErrStoreInconsistency, len(vr.Conflicts))
}

// Validator inspects one store.
type Validator struct {
	store storage.Provider
	cal   *calendar.Normalizer
}

func New(store storage.Provider, cal *calendar.Normalizer) *Validator {
	return &Validator{store: store, cal: cal}
}

// Validate walks every live habit and its entries.
func (v *Validator) Validate(ctx context.Context) (ValidationResult, error) {
	var vr ValidationResult
	today := v.cal.Today()

	habits, err := v.store.GetAllHabits(ctx, true, false)
	if err != nil {
		return vr, err
	}

	names := make(map[string][]string)
	for _, h := range habits {
		key := strings.ToLower(strings.TrimSpace(h.Name))
		names[key] = append(names[key], h.ID)

		if err := goal.Validate(h); err != nil {
			vr.add(ConflictInvalidHabit, h.ID, "", "habit %q: %v", h.Name, err)
		}

		entries, err := v.store.GetHabitEntriesForHabit(ctx, h.ID, "", "")
		if err != nil {
			return vr, fmt.Errorf("failed to read entries for %s: %w", h.Name, err)
		}
		for _, e := range entries {
			v.checkEntry(&vr, h, e, today)
		}

		res := streak.Compute(entries, today, streak.OptionsFor(h, v.cal))
		if shown := streak.Display(h.StreakState(), today); shown != res.Current {
			vr.add(ConflictStaleStreak, h.ID, "", "habit %q: cached streak %d, history gives %d", h.Name, shown, res.Current)
		}
	}

	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if ids := names[k]; len(ids) > 1 {
			vr.add(ConflictDuplicateHabitName, ids[0], "", "habit name %q is used by %d habits", k, len(ids))
		}
	}

	dups, err := v.store.FindDuplicateEntries(ctx)
	if err != nil {
		return vr, err
	}
	for _, d := range dups {
		vr.add(ConflictDuplicateEntry, d.HabitID, d.Day, "habit %s has %d entries for %s", d.HabitID, len(d.Entries), d.Day)
	}

	dangling, err := v.store.FindDanglingEntries(ctx)
	if err != nil {
		return vr, err
	}
	for _, e := range dangling {
		vr.add(ConflictDanglingEntry, e.HabitID, e.Day, "entry %s for %s belongs to a missing or deleted habit %s", e.ID, e.Day, e.HabitID)
	}
	return vr, nil
}

func (v *Validator) checkEntry(vr *ValidationResult, h models.Habit, e models.HabitEntry, today string) {
	if !calendar.ValidateDay(e.Day) {
		vr.add(ConflictInvalidEntry, h.ID, e.Day, "habit %q: entry %s has malformed day %q", h.Name, e.ID, e.Day)
		return
	}
	if e.Day > today {
		vr.add(ConflictFutureEntry, h.ID, e.Day, "habit %q: entry for future day %s", h.Name, e.Day)
	}
	if e.Progress < 0 || math.IsNaN(e.Progress) || math.IsInf(e.Progress, 0) {
		vr.add(ConflictInvalidEntry, h.ID, e.Day, "habit %q: entry for %s has progress %v", h.Name, e.Day, e.Progress)
	}
	if goal.VariantOf(e.Goal) == goal.QuitLimit && e.Goal.GoalTarget <= 0 {
		vr.add(ConflictInvalidEntry, h.ID, e.Day, "habit %q: entry for %s was recorded under a limit without a ceiling", h.Name, e.Day)
	}
}

func (vr *ValidationResult) add(t ConflictType, habitID, day, format string, args ...interface{}) {
	vr.Conflicts = append(vr.Conflicts, Conflict{
		Type:        t,
		Description: fmt.Sprintf(format, args...),
		HabitID:     habitID,
		Day:         day,
	})
}

// FixAction records one repair.
type FixAction struct {
	Action         string
	SourceConflict Conflict
}

// Recomputer refreshes a habit's cached streak.
type Recomputer interface {
	RecomputeStreak(ctx context.Context, habitID string) (streak.Result, error)
}

// AutoFix compacts duplicate and dangling entries and recomputes stale streaks.
// Compaction runs before the recompute so streaks see the surviving entries.
func (v *Validator) AutoFix(ctx context.Context, vr ValidationResult, rc Recomputer) ([]FixAction, error) {
	var actions []FixAction

	if compact := vr.Of(ConflictDuplicateEntry, ConflictDanglingEntry); len(compact) > 0 {
		report, err := v.store.Compact(ctx)
		if err != nil {
			return actions, fmt.Errorf("compaction failed: %w", err)
		}
		actions = append(actions, FixAction{
			Action: fmt.Sprintf("Compacted store: removed %d duplicate and %d dangling entries",
				report.DuplicatesRemoved, report.DanglingRemoved),
			SourceConflict: compact[0],
		})
	}

	recomputed := make(map[string]bool)
	for _, c := range vr.Conflicts {
		if c.Type != ConflictStaleStreak && c.Type != ConflictDuplicateEntry {
			continue
		}
		if recomputed[c.HabitID] {
			continue
		}
		recomputed[c.HabitID] = true
		res, err := rc.RecomputeStreak(ctx, c.HabitID)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return actions, fmt.Errorf("failed to recompute streak for %s: %w", c.HabitID, err)
		}
		actions = append(actions, FixAction{
			Action:         fmt.Sprintf("Recomputed streak for %s: %d", c.HabitID, res.Current),
			SourceConflict: c,
		})
	}
	return actions, nil
}
